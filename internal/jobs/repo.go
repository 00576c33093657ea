package jobs

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	DB *gorm.DB
}

// EnsureScheduled enqueues a job of typ unless one is already pending or
// running. Relies on the uq_jobs_active_type partial unique index.
func (r *Repo) EnsureScheduled(ctx context.Context, typ string, runAt time.Time) error {
	return r.DB.WithContext(ctx).Exec(`
insert into jobs (type, payload, run_at, status, attempts, max_attempts, created_at, updated_at)
values (?, '{}'::jsonb, ?, 'PENDING', 0, 8, now(), now())
on conflict (type) where status in ('PENDING', 'RUNNING') do nothing`, typ, runAt).Error
}

// stuckAfter is how long a RUNNING job may hold its lock before another
// worker takes it over. Outreach runs are bounded well below this.
const stuckAfter = 30 * time.Minute

// Claim locks the oldest due job for workerID, or returns nil when none is due.
func (r *Repo) Claim(ctx context.Context, workerID string) (*Job, error) {
	var job Job
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`
update jobs
set status='PENDING', locked_by=null, locked_at=null, updated_at=now()
where status='RUNNING' and locked_at < ?`, time.Now().Add(-stuckAfter)).Error; err != nil {
			return err
		}

		return tx.Raw(`
with due as (
  select id
  from jobs
  where status='PENDING' and run_at <= now()
  order by run_at asc, id asc
  limit 1
  for update skip locked
)
update jobs
set status='RUNNING', locked_by=?, locked_at=now(), updated_at=now()
where id in (select id from due)
returning *`, workerID).Scan(&job).Error
	})
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *Repo) MarkDone(ctx context.Context, id uint64) error {
	return r.DB.WithContext(ctx).Exec(`update jobs set status='DONE', updated_at=now() where id=?`, id).Error
}

func (r *Repo) MarkFailed(ctx context.Context, id uint64, errMsg string) error {
	return r.DB.WithContext(ctx).Exec(`update jobs set status='FAILED', last_error=?, updated_at=now() where id=?`, errMsg, id).Error
}

func (r *Repo) RetryLater(ctx context.Context, id uint64, attempts int, runAt time.Time, errMsg string) error {
	return r.DB.WithContext(ctx).Exec(`
update jobs
set status='PENDING',
    attempts=?,
    run_at=?,
    locked_by=null,
    locked_at=null,
    last_error=?,
    updated_at=now()
where id=?`, attempts, runAt, errMsg, id).Error
}
