package db

import (
	"fmt"

	"eatauthentically/internal/auth"
	"eatauthentically/internal/claim"
	"eatauthentically/internal/jobs"
	"eatauthentically/internal/outreach"
	"eatauthentically/internal/producer"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return gdb, nil
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&auth.User{},
		&auth.APIKey{},
		&producer.Producer{},
		&producer.Contact{},
		&claim.Invitation{},
		&outreach.EmailState{},
		&jobs.Job{},
	); err != nil {
		return err
	}

	stmts := []string{
		// outreach cursor: due follow-ups, oldest first
		`create index if not exists idx_outreach_due
on producer_outreach_email_states(next_email_at)
where claimed_at is null and email_step < 5;`,
		// outreach cursor: never-contacted producers, oldest first
		`create index if not exists idx_producers_unclaimed_created
on producers(created_at)
where user_id is null;`,
		`create index if not exists idx_claim_invitations_waiting
on claim_invitations(producer_id, expires_at)
where status->>'type' = 'waiting';`,
		// one live job per recurring type
		`create unique index if not exists uq_jobs_active_type
on jobs(type)
where status in ('PENDING', 'RUNNING');`,
		`create index if not exists idx_jobs_due on jobs(status, run_at);`,
		`create index if not exists idx_jobs_lock on jobs(status, locked_at);`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
