package claim

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore mirrors GormStore semantics in memory. Complete checks every
// precondition before writing so a failure leaves no partial state.
type memStore struct {
	mu      sync.Mutex
	invs    map[uuid.UUID]*Invitation
	owners  map[uuid.UUID]*uuid.UUID
	emails  map[string]uuid.UUID
	setHits int

	// afterFind runs after FindWaitingByToken releases the lock, to let a
	// concurrent writer slip in between read and write.
	afterFind func()
}

func newMemStore() *memStore {
	return &memStore{
		invs:   map[uuid.UUID]*Invitation{},
		owners: map[uuid.UUID]*uuid.UUID{},
		emails: map[string]uuid.UUID{},
	}
}

func (m *memStore) addProducer(id uuid.UUID, owner *uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[id] = owner
}

func (m *memStore) get(id uuid.UUID) *Invitation {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.invs[id]
	return &cp
}

func (m *memStore) Create(_ context.Context, inv *Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	cp := *inv
	m.invs[inv.ID] = &cp
	return nil
}

func (m *memStore) Supersede(ctx context.Context, inv *Invitation, now time.Time) error {
	m.mu.Lock()
	for _, other := range m.invs {
		if other.ProducerID == inv.ProducerID && other.State() == StatusWaiting {
			other.Status = expired(now)
		}
	}
	m.mu.Unlock()
	return m.Create(ctx, inv)
}

func (m *memStore) FindWaitingByToken(_ context.Context, token string) (*Invitation, error) {
	inv, err := m.findWaiting(token)
	if err == nil && m.afterFind != nil {
		m.afterFind()
	}
	return inv, err
}

func (m *memStore) findWaiting(token string) (*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invs {
		if inv.ClaimToken == token && inv.State() == StatusWaiting {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, errNotFound
}

func (m *memStore) FindActiveByProducer(_ context.Context, producerID uuid.UUID, now time.Time) (*Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Invitation
	for _, inv := range m.invs {
		if inv.ProducerID != producerID || inv.State() != StatusWaiting || !inv.ExpiresAt.After(now) {
			continue
		}
		if best == nil || inv.CreatedAt.After(best.CreatedAt) {
			best = inv
		}
	}
	if best == nil {
		return nil, errNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *memStore) ExpireWaiting(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setHits++
	inv, ok := m.invs[id]
	if !ok || inv.State() != StatusWaiting {
		return false, nil
	}
	inv.Status = expired(at)
	inv.UpdatedAt = at
	return true, nil
}

func (m *memStore) Complete(_ context.Context, c Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.emails[c.User.Email]; ok {
		return ErrEmailTaken
	}
	inv, ok := m.invs[c.InvitationID]
	if !ok || inv.State() != StatusWaiting || !inv.ExpiresAt.After(c.At) {
		return ErrInvitationInvalid
	}
	if owner := m.owners[c.ProducerID]; owner != nil {
		return ErrProducerClaimed
	}

	m.emails[c.User.Email] = c.User.ID
	inv.Status = claimed(c.User.ID, c.At)
	id := c.User.ID
	m.owners[c.ProducerID] = &id
	return nil
}

func (m *memStore) ExpireBefore(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, inv := range m.invs {
		if inv.State() == StatusWaiting && !inv.ExpiresAt.After(now) {
			inv.Status = expired(now)
			n++
		}
	}
	return n, nil
}
