package handler

import (
	"context"
	"time"

	"eatauthentically/internal/auth"
	"eatauthentically/internal/claim"
	"eatauthentically/internal/outreach"
	"eatauthentically/internal/producer"

	"github.com/google/uuid"
)

type fakeClaims struct {
	valid       map[string]*claim.Invitation
	completeErr error
	created     []string
}

func (f *fakeClaims) GetValidByToken(_ context.Context, token string) (*claim.Invitation, error) {
	return f.valid[token], nil
}

func (f *fakeClaims) Complete(_ context.Context, token string, in claim.CompleteInput) (*auth.User, *claim.Invitation, error) {
	if f.completeErr != nil {
		return nil, nil, f.completeErr
	}
	inv := f.valid[token]
	if inv == nil {
		return nil, nil, claim.ErrInvitationInvalid
	}
	return &auth.User{ID: uuid.New(), Email: in.Email}, inv, nil
}

func (f *fakeClaims) Create(_ context.Context, producerID uuid.UUID, recipientEmail string) (*claim.Invitation, error) {
	f.created = append(f.created, recipientEmail)
	return &claim.Invitation{
		ID:         uuid.New(),
		ProducerID: producerID,
		ExpiresAt:  time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		ClaimToken: "tok-new",
	}, nil
}

func (f *fakeClaims) ClaimURL(inv *claim.Invitation) string {
	return "https://eatauthentically.app/join-and-claim?token=" + inv.ClaimToken
}

type fakeProducers map[uuid.UUID]*producer.Producer

func (f fakeProducers) Get(_ context.Context, id uuid.UUID) (*producer.Producer, error) {
	p, ok := f[id]
	if !ok {
		return nil, producer.ErrNotFound
	}
	return p, nil
}

type fakeRunner struct {
	calls int
	err   error
}

func (f *fakeRunner) Run(ctx context.Context) (*outreach.Report, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &outreach.Report{Sent: 3, Failures: []outreach.Failure{}}, nil
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, nil
}
