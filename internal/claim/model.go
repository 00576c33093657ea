package claim

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusWaiting Status = "waiting"
	StatusClaimed Status = "claimed"
	StatusExpired Status = "expired"
)

// StatusDetail is stored as jsonb; Type is the lifecycle state.
type StatusDetail struct {
	Type      Status     `json:"type"`
	ClaimedBy *uuid.UUID `json:"claimedBy,omitempty"`
	ClaimedAt *time.Time `json:"claimedAt,omitempty"`
	ExpiredAt *time.Time `json:"expiredAt,omitempty"`
}

// Invitation grants the holder of ClaimToken the right to take over a
// producer listing until ExpiresAt.
type Invitation struct {
	ID           uuid.UUID                        `gorm:"type:uuid;primaryKey"`
	ProducerID   uuid.UUID                        `gorm:"type:uuid;index;not null"`
	Status       datatypes.JSONType[StatusDetail] `gorm:"type:jsonb;not null"`
	ExpiresAt    time.Time                        `gorm:"index;not null"`
	ClaimerEmail *string                          `gorm:"type:text"`
	ClaimToken   string                           `gorm:"type:text;uniqueIndex;not null"`
	CreatedAt    time.Time                        `gorm:"not null;default:now()"`
	UpdatedAt    time.Time                        `gorm:"not null;default:now()"`
}

func (Invitation) TableName() string { return "claim_invitations" }

func (i *Invitation) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (i *Invitation) State() Status { return i.Status.Data().Type }

// ExpiredAt reports whether the invitation is past due at now. ExpiresAt
// itself is the first instant the invitation is no longer valid.
func (i *Invitation) ExpiredAt(now time.Time) bool { return !now.Before(i.ExpiresAt) }

func waiting() datatypes.JSONType[StatusDetail] {
	return datatypes.NewJSONType(StatusDetail{Type: StatusWaiting})
}

func expired(at time.Time) datatypes.JSONType[StatusDetail] {
	return datatypes.NewJSONType(StatusDetail{Type: StatusExpired, ExpiredAt: &at})
}

func claimed(by uuid.UUID, at time.Time) datatypes.JSONType[StatusDetail] {
	return datatypes.NewJSONType(StatusDetail{Type: StatusClaimed, ClaimedBy: &by, ClaimedAt: &at})
}
