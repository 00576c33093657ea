package outreach

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	// MaxStep is the last email of the campaign.
	MaxStep = 5

	FollowUpBatch    = 76
	NewProducerBatch = 19

	StepInterval = 7 * 24 * time.Hour
)

type Metadata struct {
	RunEmailIDs []string `json:"runEmailIds"`
}

// EmailState tracks one producer's position in the drip campaign.
// EmailStep only moves forward, one step per run.
type EmailState struct {
	ProducerID    uuid.UUID                    `gorm:"type:uuid;primaryKey"`
	EmailStep     int                          `gorm:"not null"`
	LastEmailSent *time.Time                   `gorm:"type:timestamptz"`
	NextEmailAt   *time.Time                   `gorm:"type:timestamptz;index"`
	ClaimedAt     *time.Time                   `gorm:"type:timestamptz"`
	CompletedAt   *time.Time                   `gorm:"type:timestamptz"`
	Metadata      datatypes.JSONType[Metadata] `gorm:"type:jsonb;not null;default:'{}'::jsonb"`
	CreatedAt     time.Time                    `gorm:"not null;default:now()"`
	UpdatedAt     time.Time                    `gorm:"not null;default:now()"`
}

func (EmailState) TableName() string { return "producer_outreach_email_states" }

// Candidate is a producer selected for this run. EmailStep is nil for
// producers that have never been contacted.
type Candidate struct {
	ProducerID   uuid.UUID  `gorm:"column:producer_id"`
	ProducerName string     `gorm:"column:producer_name"`
	UserID       *uuid.UUID `gorm:"column:user_id"`
	Email        string     `gorm:"column:email"`
	EmailStep    *int       `gorm:"column:email_step"`
}

// StepUpdate is the row state written when a producer moves to Step.
type StepUpdate struct {
	Step          int
	LastEmailSent time.Time
	NextEmailAt   *time.Time
	CompletedAt   *time.Time
}

// NextStep computes the update that advances a producer from step `from`.
func NextStep(from int, now time.Time) StepUpdate {
	upd := StepUpdate{Step: from + 1, LastEmailSent: now}
	if upd.Step >= MaxStep {
		upd.CompletedAt = &now
		return upd
	}
	next := now.Add(StepInterval)
	upd.NextEmailAt = &next
	return upd
}
