package outreach

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store interface {
	DueFollowUps(ctx context.Context, now time.Time, limit int) ([]Candidate, error)
	NewProducers(ctx context.Context, limit int) ([]Candidate, error)
	MarkClaimed(ctx context.Context, producerID uuid.UUID, at time.Time) error
	// InsertIfAbsent reports false when the producer already has a state row.
	InsertIfAbsent(ctx context.Context, st *EmailState) (bool, error)
	// Advance applies upd only while the row is still at step `from`.
	Advance(ctx context.Context, producerID uuid.UUID, from int, upd StepUpdate) (bool, error)
	AppendEmailID(ctx context.Context, producerID uuid.UUID, emailID string) error
	Delete(ctx context.Context, producerID uuid.UUID, step int) error
}

type GormStore struct {
	DB *gorm.DB
}

func (s *GormStore) DueFollowUps(ctx context.Context, now time.Time, limit int) ([]Candidate, error) {
	var out []Candidate
	err := s.DB.WithContext(ctx).Raw(`
select p.id as producer_id, p.name as producer_name, p.user_id, c.email, s.email_step
from producer_outreach_email_states s
join producers p on p.id = s.producer_id
join producer_contacts c on c.producer_id = p.id
where c.email is not null and c.email <> ''
  and s.next_email_at <= ?
  and s.email_step < ?
  and s.claimed_at is null
order by s.next_email_at asc
limit ?`, now, MaxStep, limit).Scan(&out).Error
	return out, err
}

func (s *GormStore) NewProducers(ctx context.Context, limit int) ([]Candidate, error) {
	var out []Candidate
	err := s.DB.WithContext(ctx).Raw(`
select p.id as producer_id, p.name as producer_name, p.user_id, c.email, null::int as email_step
from producers p
join producer_contacts c on c.producer_id = p.id
left join producer_outreach_email_states s on s.producer_id = p.id
where c.email is not null and c.email <> ''
  and s.producer_id is null
  and p.user_id is null
order by p.created_at asc
limit ?`, limit).Scan(&out).Error
	return out, err
}

func (s *GormStore) MarkClaimed(ctx context.Context, producerID uuid.UUID, at time.Time) error {
	return s.DB.WithContext(ctx).Model(&EmailState{}).
		Where("producer_id = ? AND claimed_at IS NULL", producerID).
		Updates(map[string]any{"claimed_at": at, "next_email_at": nil, "updated_at": at}).Error
}

func (s *GormStore) InsertIfAbsent(ctx context.Context, st *EmailState) (bool, error) {
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "producer_id"}}, DoNothing: true}).
		Create(st)
	return res.RowsAffected == 1, res.Error
}

func (s *GormStore) Advance(ctx context.Context, producerID uuid.UUID, from int, upd StepUpdate) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&EmailState{}).
		Where("producer_id = ? AND email_step = ?", producerID, from).
		Updates(map[string]any{
			"email_step":      upd.Step,
			"last_email_sent": upd.LastEmailSent,
			"next_email_at":   upd.NextEmailAt,
			"completed_at":    upd.CompletedAt,
			"updated_at":      upd.LastEmailSent,
		})
	return res.RowsAffected == 1, res.Error
}

func (s *GormStore) AppendEmailID(ctx context.Context, producerID uuid.UUID, emailID string) error {
	return s.DB.WithContext(ctx).Exec(`
update producer_outreach_email_states
set metadata = jsonb_set(
      coalesce(metadata, '{}'::jsonb),
      '{runEmailIds}',
      coalesce(metadata->'runEmailIds', '[]'::jsonb) || to_jsonb(?::text)),
    updated_at = now()
where producer_id = ?`, emailID, producerID).Error
}

func (s *GormStore) Delete(ctx context.Context, producerID uuid.UUID, step int) error {
	return s.DB.WithContext(ctx).
		Where("producer_id = ? AND email_step = ?", producerID, step).
		Delete(&EmailState{}).Error
}
