package claim

import (
	"context"
	"errors"
	"time"

	"eatauthentically/internal/auth"
	"eatauthentically/internal/producer"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var errNotFound = errors.New("claim invitation not found")

// Completion carries the writes that turn a waiting invitation into an owned listing.
type Completion struct {
	InvitationID uuid.UUID
	ProducerID   uuid.UUID
	User         *auth.User
	At           time.Time
}

type Store interface {
	Create(ctx context.Context, inv *Invitation) error
	// Supersede expires every waiting invitation of inv's producer and creates inv.
	Supersede(ctx context.Context, inv *Invitation, now time.Time) error
	FindWaitingByToken(ctx context.Context, token string) (*Invitation, error)
	FindActiveByProducer(ctx context.Context, producerID uuid.UUID, now time.Time) (*Invitation, error)
	// ExpireWaiting expires the invitation only while it is still waiting.
	ExpireWaiting(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	Complete(ctx context.Context, c Completion) error
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
}

type GormStore struct {
	DB *gorm.DB
}

func (s *GormStore) Create(ctx context.Context, inv *Invitation) error {
	return s.DB.WithContext(ctx).Create(inv).Error
}

func (s *GormStore) Supersede(ctx context.Context, inv *Invitation, now time.Time) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Invitation{}).
			Where("producer_id = ? AND status->>'type' = ?", inv.ProducerID, StatusWaiting).
			Updates(map[string]any{"status": expired(now), "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.Create(inv).Error
	})
}

func (s *GormStore) FindWaitingByToken(ctx context.Context, token string) (*Invitation, error) {
	var inv Invitation
	err := s.DB.WithContext(ctx).
		Where("claim_token = ? AND status->>'type' = ?", token, StatusWaiting).
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *GormStore) FindActiveByProducer(ctx context.Context, producerID uuid.UUID, now time.Time) (*Invitation, error) {
	var inv Invitation
	err := s.DB.WithContext(ctx).
		Where("producer_id = ? AND status->>'type' = ? AND expires_at > ?", producerID, StatusWaiting, now).
		Order("created_at desc").
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *GormStore) ExpireWaiting(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&Invitation{}).
		Where("id = ? AND status->>'type' = ?", id, StatusWaiting).
		Updates(map[string]any{"status": expired(at), "updated_at": at})
	return res.RowsAffected == 1, res.Error
}

// Complete creates the user, claims the invitation and assigns the producer in
// one transaction. Each conditional update must hit exactly one row.
func (s *GormStore) Complete(ctx context.Context, c Completion) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c.User).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEmailTaken
			}
			return err
		}

		res := tx.Model(&Invitation{}).
			Where("id = ? AND status->>'type' = ? AND expires_at > ?", c.InvitationID, StatusWaiting, c.At).
			Updates(map[string]any{"status": claimed(c.User.ID, c.At), "updated_at": c.At})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvitationInvalid
		}

		res = tx.Model(&producer.Producer{}).
			Where("id = ? AND user_id IS NULL", c.ProducerID).
			Updates(map[string]any{"user_id": c.User.ID, "updated_at": c.At})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrProducerClaimed
		}
		return nil
	})
}

func (s *GormStore) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&Invitation{}).
		Where("status->>'type' = ? AND expires_at <= ?", StatusWaiting, now).
		Updates(map[string]any{"status": expired(now), "updated_at": now})
	return res.RowsAffected, res.Error
}
