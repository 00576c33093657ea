package outreach_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"eatauthentically/internal/claim"
	"eatauthentically/internal/email"
	"eatauthentically/internal/outreach"
	"eatauthentically/internal/producer"
	"eatauthentically/internal/testdb"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func seedProducer(t *testing.T, gdb *gorm.DB, name, addr string, created time.Time) *producer.Producer {
	t.Helper()
	p := &producer.Producer{Name: name, Type: producer.TypeFarm, CreatedAt: created}
	require.NoError(t, gdb.Create(p).Error)
	c := &producer.Contact{ProducerID: p.ID}
	if addr != "" {
		c.Email = &addr
	}
	require.NoError(t, gdb.Create(c).Error)
	return p
}

func seedState(t *testing.T, gdb *gorm.DB, id uuid.UUID, step int, next time.Time) {
	t.Helper()
	require.NoError(t, gdb.Create(&outreach.EmailState{
		ProducerID:  id,
		EmailStep:   step,
		NextEmailAt: &next,
		Metadata:    datatypes.NewJSONType(outreach.Metadata{RunEmailIDs: []string{}}),
	}).Error)
}

func TestGormAdvanceCompareAndSwap(t *testing.T) {
	gdb := testdb.Open(t)
	st := &outreach.GormStore{DB: gdb}
	now := time.Now().UTC().Truncate(time.Microsecond)

	p := seedProducer(t, gdb, "Farm", "farm@example.com", now)
	seedState(t, gdb, p.ID, 2, now.Add(-time.Hour))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := st.Advance(context.Background(), p.ID, 2, outreach.NextStep(2, now))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	var got outreach.EmailState
	require.NoError(t, gdb.First(&got, "producer_id = ?", p.ID).Error)
	assert.Equal(t, 3, got.EmailStep)
}

func TestGormCandidateSelection(t *testing.T) {
	gdb := testdb.Open(t)
	st := &outreach.GormStore{DB: gdb}
	ctx := context.Background()
	now := time.Now().UTC()

	older := seedProducer(t, gdb, "Older", "older@example.com", now.Add(-48*time.Hour))
	newer := seedProducer(t, gdb, "Newer", "newer@example.com", now.Add(-24*time.Hour))
	seedState(t, gdb, newer.ID, 1, now.Add(-2*time.Hour))
	seedState(t, gdb, older.ID, 2, now.Add(-time.Hour))

	notDue := seedProducer(t, gdb, "NotDue", "notdue@example.com", now)
	seedState(t, gdb, notDue.ID, 1, now.Add(time.Hour))
	done := seedProducer(t, gdb, "Done", "done@example.com", now)
	seedState(t, gdb, done.ID, 5, now.Add(-time.Hour))

	fresh := seedProducer(t, gdb, "Fresh", "fresh@example.com", now.Add(-time.Hour))
	seedProducer(t, gdb, "NoEmail", "", now)
	owned := seedProducer(t, gdb, "Owned", "owned@example.com", now)
	uid := uuid.New()
	require.NoError(t, gdb.Model(owned).Update("user_id", uid).Error)

	due, err := st.DueFollowUps(ctx, now, outreach.FollowUpBatch)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, newer.ID, due[0].ProducerID)
	assert.Equal(t, older.ID, due[1].ProducerID)
	require.NotNil(t, due[1].EmailStep)
	assert.Equal(t, 2, *due[1].EmailStep)

	limited, err := st.DueFollowUps(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	news, err := st.NewProducers(ctx, outreach.NewProducerBatch)
	require.NoError(t, err)
	require.Len(t, news, 1)
	assert.Equal(t, fresh.ID, news[0].ProducerID)
	assert.Nil(t, news[0].EmailStep)
	assert.Equal(t, "fresh@example.com", news[0].Email)
}

func TestGormInsertAppendDelete(t *testing.T) {
	gdb := testdb.Open(t)
	st := &outreach.GormStore{DB: gdb}
	ctx := context.Background()
	now := time.Now().UTC()
	p := seedProducer(t, gdb, "Farm", "farm@example.com", now)

	row := func() *outreach.EmailState {
		return &outreach.EmailState{
			ProducerID: p.ID,
			EmailStep:  1,
			Metadata:   datatypes.NewJSONType(outreach.Metadata{RunEmailIDs: []string{}}),
		}
	}
	ok, err := st.InsertIfAbsent(ctx, row())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.InsertIfAbsent(ctx, row())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.AppendEmailID(ctx, p.ID, "a"))
	require.NoError(t, st.AppendEmailID(ctx, p.ID, "b"))

	var got outreach.EmailState
	require.NoError(t, gdb.First(&got, "producer_id = ?", p.ID).Error)
	assert.Equal(t, []string{"a", "b"}, got.Metadata.Data().RunEmailIDs)

	require.NoError(t, st.MarkClaimed(ctx, p.ID, now))
	require.NoError(t, gdb.First(&got, "producer_id = ?", p.ID).Error)
	assert.NotNil(t, got.ClaimedAt)

	require.NoError(t, st.Delete(ctx, p.ID, 2))
	require.NoError(t, gdb.First(&got, "producer_id = ?", p.ID).Error, "step mismatch keeps the row")
	require.NoError(t, st.Delete(ctx, p.ID, 1))
	assert.ErrorIs(t, gdb.First(&got, "producer_id = ?", p.ID).Error, gorm.ErrRecordNotFound)
}

type countingMailer struct{ n int }

func (m *countingMailer) Send(context.Context, email.Message) (string, error) {
	m.n++
	return uuid.NewString(), nil
}

func TestGormSchedulerRun(t *testing.T) {
	gdb := testdb.Open(t)
	now := time.Now().UTC()
	p := seedProducer(t, gdb, "Farm", "farm@example.com", now.Add(-time.Hour))

	claims := claim.NewService(&claim.GormStore{DB: gdb}, "https://eatauthentically.app", zap.NewNop())
	mailer := &countingMailer{}
	sched := outreach.NewScheduler(&outreach.GormStore{DB: gdb}, claims, mailer,
		[outreach.MaxStep]string{"1", "2", "3", "4", "5"}, zap.NewNop())

	rep, err := sched.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Sent)
	assert.Empty(t, rep.Failures)

	var st outreach.EmailState
	require.NoError(t, gdb.First(&st, "producer_id = ?", p.ID).Error)
	assert.Equal(t, 1, st.EmailStep)
	assert.Len(t, st.Metadata.Data().RunEmailIDs, 1)

	var invs []claim.Invitation
	require.NoError(t, gdb.Where("producer_id = ?", p.ID).Find(&invs).Error)
	require.Len(t, invs, 1)
	assert.Equal(t, claim.StatusWaiting, invs[0].State())

	// Second run in the same instant finds nothing to do.
	rep, err = sched.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Sent)
	assert.Equal(t, 1, mailer.n)
}
