package claim

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"eatauthentically/internal/auth"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvitationInvalid = errors.New("claim invitation not found or expired")
	ErrEmailTaken        = errors.New("email already registered")
	ErrProducerClaimed   = errors.New("producer already claimed")
	ErrWeakPassword      = errors.New("password too short")
)

const DefaultTTL = 30 * 24 * time.Hour

type Service struct {
	Store   Store
	SiteURL string
	TTL     time.Duration
	Now     func() time.Time
	Log     *zap.Logger
}

func NewService(store Store, siteURL string, log *zap.Logger) *Service {
	return &Service{
		Store:   store,
		SiteURL: strings.TrimRight(siteURL, "/"),
		TTL:     DefaultTTL,
		Now:     time.Now,
		Log:     log,
	}
}

func (s *Service) newInvitation(producerID uuid.UUID, email string) (*Invitation, error) {
	token, err := NewToken()
	if err != nil {
		return nil, fmt.Errorf("claim token: %w", err)
	}
	inv := &Invitation{
		ProducerID: producerID,
		Status:     waiting(),
		ExpiresAt:  s.Now().Add(s.TTL),
		ClaimToken: token,
	}
	if email = strings.TrimSpace(email); email != "" {
		inv.ClaimerEmail = &email
	}
	return inv, nil
}

// Create issues a fresh invitation for recipientEmail, expiring any waiting
// invitation the producer already had.
func (s *Service) Create(ctx context.Context, producerID uuid.UUID, recipientEmail string) (*Invitation, error) {
	inv, err := s.newInvitation(producerID, recipientEmail)
	if err != nil {
		return nil, err
	}
	if err := s.Store.Supersede(ctx, inv, s.Now()); err != nil {
		return nil, fmt.Errorf("create claim invitation: %w", err)
	}
	s.Log.Info("claim invitation created",
		zap.String("producer_id", producerID.String()),
		zap.String("claim_invitation_id", inv.ID.String()),
	)
	return inv, nil
}

// EnsureForProducer returns the producer's active invitation, creating one when
// there is none.
func (s *Service) EnsureForProducer(ctx context.Context, producerID uuid.UUID, email string) (*Invitation, error) {
	inv, err := s.Store.FindActiveByProducer(ctx, producerID, s.Now())
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, errNotFound) {
		return nil, err
	}

	inv, err = s.newInvitation(producerID, email)
	if err != nil {
		return nil, err
	}
	if err := s.Store.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("create claim invitation: %w", err)
	}
	return inv, nil
}

// GetValidByToken returns the waiting invitation for token, or nil when there
// is none. A waiting invitation found past its expiry is marked expired.
func (s *Service) GetValidByToken(ctx context.Context, token string) (*Invitation, error) {
	if token == "" {
		return nil, nil
	}
	inv, err := s.Store.FindWaitingByToken(ctx, token)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := s.Now()
	if inv.ExpiredAt(now) {
		ok, err := s.Store.ExpireWaiting(ctx, inv.ID, now)
		if err != nil {
			return nil, fmt.Errorf("expire claim invitation: %w", err)
		}
		if ok {
			s.Log.Info("claim invitation expired on read", zap.String("claim_invitation_id", inv.ID.String()))
		}
		return nil, nil
	}
	return inv, nil
}

func (s *Service) ClaimURL(inv *Invitation) string {
	return s.SiteURL + "/join-and-claim?token=" + url.QueryEscape(inv.ClaimToken)
}

type CompleteInput struct {
	Email    string
	Name     string
	Password string
}

// Complete creates an account from a valid invitation and hands it the listing.
func (s *Service) Complete(ctx context.Context, token string, in CompleteInput) (*auth.User, *Invitation, error) {
	if len(in.Password) < auth.MinPasswordLength {
		return nil, nil, ErrWeakPassword
	}

	inv, err := s.GetValidByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	if inv == nil {
		return nil, nil, ErrInvitationInvalid
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}
	user := &auth.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hash,
	}

	err = s.Store.Complete(ctx, Completion{
		InvitationID: inv.ID,
		ProducerID:   inv.ProducerID,
		User:         user,
		At:           s.Now(),
	})
	if err != nil {
		return nil, nil, err
	}

	s.Log.Info("producer claimed",
		zap.String("producer_id", inv.ProducerID.String()),
		zap.String("user_id", user.ID.String()),
		zap.String("claim_invitation_id", inv.ID.String()),
	)
	return user, inv, nil
}

// SweepExpired marks every past-due waiting invitation expired.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.Store.ExpireBefore(ctx, s.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.Log.Info("expired claim invitations swept", zap.Int64("count", n))
	}
	return n, nil
}
