package producer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("producer not found")

type Type string

const (
	TypeFarm   Type = "farm"
	TypeRanch  Type = "ranch"
	TypeEatery Type = "eatery"
)

// Producer is a directory listing. A non-nil UserID means the listing has been
// claimed by that account.
type Producer struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Name      string     `gorm:"type:text;not null"`
	Type      Type       `gorm:"type:text;not null;default:'farm'"`
	UserID    *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt time.Time  `gorm:"index;not null;default:now()"`
	UpdatedAt time.Time  `gorm:"not null;default:now()"`
}

func (p *Producer) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *Producer) Claimed() bool { return p.UserID != nil }

type Contact struct {
	ProducerID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email      *string   `gorm:"type:text"`
	Phone      *string   `gorm:"type:text"`
	Website    *string   `gorm:"type:text"`
}

func (Contact) TableName() string { return "producer_contacts" }

type Repo struct {
	DB *gorm.DB
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (*Producer, error) {
	var p Producer
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) ListOwned(ctx context.Context, userID uuid.UUID) ([]Producer, error) {
	var out []Producer
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at asc").Find(&out).Error
	return out, err
}
