package outreach

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"eatauthentically/internal/claim"
	"eatauthentically/internal/email"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type fakeProducer struct {
	ID        uuid.UUID
	Name      string
	UserID    *uuid.UUID
	Email     string
	CreatedAt time.Time
}

// memStore implements Store with the same selection and compare-and-swap
// rules as GormStore.
type memStore struct {
	mu        sync.Mutex
	producers map[uuid.UUID]*fakeProducer
	states    map[uuid.UUID]*EmailState

	// beforeAdvance runs inside Advance before the step check, to simulate a
	// concurrent writer.
	beforeAdvance func(st *EmailState)
}

func newMemStore() *memStore {
	return &memStore{
		producers: map[uuid.UUID]*fakeProducer{},
		states:    map[uuid.UUID]*EmailState{},
	}
}

func (m *memStore) addProducer(name, addr string, created time.Time) *fakeProducer {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := &fakeProducer{ID: uuid.New(), Name: name, Email: addr, CreatedAt: created}
	m.producers[p.ID] = p
	return p
}

func (m *memStore) setState(id uuid.UUID, step int, next *time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = &EmailState{
		ProducerID:  id,
		EmailStep:   step,
		NextEmailAt: next,
		Metadata:    datatypes.NewJSONType(Metadata{RunEmailIDs: []string{}}),
	}
}

func (m *memStore) state(id uuid.UUID) (EmailState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return EmailState{}, false
	}
	return *st, true
}

func (m *memStore) DueFollowUps(_ context.Context, now time.Time, limit int) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []*EmailState
	for _, st := range m.states {
		p := m.producers[st.ProducerID]
		if p == nil || p.Email == "" || st.NextEmailAt == nil || st.NextEmailAt.After(now) ||
			st.EmailStep >= MaxStep || st.ClaimedAt != nil {
			continue
		}
		rows = append(rows, st)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].NextEmailAt.Before(*rows[j].NextEmailAt) })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]Candidate, 0, len(rows))
	for _, st := range rows {
		p := m.producers[st.ProducerID]
		step := st.EmailStep
		out = append(out, Candidate{ProducerID: p.ID, ProducerName: p.Name, UserID: p.UserID, Email: p.Email, EmailStep: &step})
	}
	return out, nil
}

func (m *memStore) NewProducers(_ context.Context, limit int) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ps []*fakeProducer
	for _, p := range m.producers {
		if _, ok := m.states[p.ID]; ok || p.Email == "" || p.UserID != nil {
			continue
		}
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].CreatedAt.Before(ps[j].CreatedAt) })
	if len(ps) > limit {
		ps = ps[:limit]
	}
	out := make([]Candidate, 0, len(ps))
	for _, p := range ps {
		out = append(out, Candidate{ProducerID: p.ID, ProducerName: p.Name, Email: p.Email})
	}
	return out, nil
}

func (m *memStore) MarkClaimed(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[id]; ok && st.ClaimedAt == nil {
		st.ClaimedAt = &at
		st.NextEmailAt = nil
	}
	return nil
}

func (m *memStore) InsertIfAbsent(_ context.Context, st *EmailState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[st.ProducerID]; ok {
		return false, nil
	}
	cp := *st
	m.states[st.ProducerID] = &cp
	return true, nil
}

func (m *memStore) Advance(_ context.Context, id uuid.UUID, from int, upd StepUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return false, nil
	}
	if m.beforeAdvance != nil {
		m.beforeAdvance(st)
	}
	if st.EmailStep != from {
		return false, nil
	}
	sent := upd.LastEmailSent
	st.EmailStep = upd.Step
	st.LastEmailSent = &sent
	st.NextEmailAt = upd.NextEmailAt
	st.CompletedAt = upd.CompletedAt
	return true, nil
}

func (m *memStore) AppendEmailID(_ context.Context, id uuid.UUID, emailID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return errors.New("no state")
	}
	md := st.Metadata.Data()
	md.RunEmailIDs = append(append([]string{}, md.RunEmailIDs...), emailID)
	st.Metadata = datatypes.NewJSONType(md)
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID, step int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[id]; ok && st.EmailStep == step {
		delete(m.states, id)
	}
	return nil
}

type fakeInvitations struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]string
	err    error
}

func (f *fakeInvitations) EnsureForProducer(_ context.Context, id uuid.UUID, _ string) (*claim.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.tokens == nil {
		f.tokens = map[uuid.UUID]string{}
	}
	tok, ok := f.tokens[id]
	if !ok {
		tok = "tok-" + id.String()
		f.tokens[id] = tok
	}
	return &claim.Invitation{ProducerID: id, ClaimToken: tok}, nil
}

func (f *fakeInvitations) ClaimURL(inv *claim.Invitation) string {
	return "https://eatauthentically.app/join-and-claim?token=" + inv.ClaimToken
}

type sentMail struct {
	email.Message
	ID string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	// failFor makes Send fail for these recipients.
	failFor map[string]bool
}

func (f *fakeMailer) Send(_ context.Context, msg email.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[msg.To] {
		return "", errors.New("smtp down")
	}
	id := "msg-" + uuid.NewString()
	f.sent = append(f.sent, sentMail{Message: msg, ID: id})
	return id, nil
}

func (f *fakeMailer) to(addr string) []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMail
	for _, m := range f.sent {
		if m.To == addr {
			out = append(out, m)
		}
	}
	return out
}
