package outreach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eatauthentically/internal/claim"
	"eatauthentically/internal/email"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var ErrNoTemplate = errors.New("no template for step")

type Invitations interface {
	EnsureForProducer(ctx context.Context, producerID uuid.UUID, email string) (*claim.Invitation, error)
	ClaimURL(inv *claim.Invitation) string
}

type Failure struct {
	ProducerID uuid.UUID `json:"producerId"`
	Step       int       `json:"step"`
	Err        string    `json:"error"`
}

// Report summarizes one Run. A failed producer does not stop the batch; it is
// listed in Failures instead.
type Report struct {
	StartedAt    time.Time `json:"startedAt"`
	FollowUps    int       `json:"followUps"`
	NewProducers int       `json:"newProducers"`
	Sent         int       `json:"sent"`
	Claimed      int       `json:"claimed"`
	Skipped      int       `json:"skipped"`
	Failures     []Failure `json:"failures"`
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeClaimed
	outcomeSkipped
)

type Scheduler struct {
	Store       Store
	Invitations Invitations
	Mailer      email.Sender
	// Templates[i] is sent for step i+1.
	Templates [MaxStep]string
	Now       func() time.Time
	Log       *zap.Logger
}

func NewScheduler(store Store, inv Invitations, mailer email.Sender, templates [MaxStep]string, log *zap.Logger) *Scheduler {
	return &Scheduler{
		Store:       store,
		Invitations: inv,
		Mailer:      mailer,
		Templates:   templates,
		Now:         time.Now,
		Log:         log,
	}
}

// Preview returns the producers the next Run would process, without side effects.
func (s *Scheduler) Preview(ctx context.Context) (followUps, fresh []Candidate, err error) {
	followUps, err = s.Store.DueFollowUps(ctx, s.Now(), FollowUpBatch)
	if err != nil {
		return nil, nil, fmt.Errorf("select follow-ups: %w", err)
	}
	fresh, err = s.Store.NewProducers(ctx, NewProducerBatch)
	if err != nil {
		return nil, nil, fmt.Errorf("select new producers: %w", err)
	}
	return followUps, fresh, nil
}

// Run advances the campaign by one step for every selected producer.
// Producers are processed sequentially.
func (s *Scheduler) Run(ctx context.Context) (*Report, error) {
	now := s.Now()
	rep := &Report{StartedAt: now, Failures: []Failure{}}

	followUps, err := s.Store.DueFollowUps(ctx, now, FollowUpBatch)
	if err != nil {
		return rep, fmt.Errorf("select follow-ups: %w", err)
	}
	fresh, err := s.Store.NewProducers(ctx, NewProducerBatch)
	if err != nil {
		return rep, fmt.Errorf("select new producers: %w", err)
	}
	rep.FollowUps = len(followUps)
	rep.NewProducers = len(fresh)

	batch := append(followUps, fresh...)
	for _, c := range batch {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		out, step, err := s.process(ctx, now, c)
		if err != nil {
			s.Log.Error("outreach step failed",
				zap.String("producer_id", c.ProducerID.String()),
				zap.Int("step", step),
				zap.Error(err),
			)
			rep.Failures = append(rep.Failures, Failure{ProducerID: c.ProducerID, Step: step, Err: err.Error()})
			continue
		}
		switch out {
		case outcomeSent:
			rep.Sent++
		case outcomeClaimed:
			rep.Claimed++
		case outcomeSkipped:
			rep.Skipped++
		}
	}

	s.Log.Info("outreach run finished",
		zap.Int("follow_ups", rep.FollowUps),
		zap.Int("new_producers", rep.NewProducers),
		zap.Int("sent", rep.Sent),
		zap.Int("claimed", rep.Claimed),
		zap.Int("skipped", rep.Skipped),
		zap.Int("failures", len(rep.Failures)),
	)
	return rep, nil
}

func (s *Scheduler) process(ctx context.Context, now time.Time, c Candidate) (outcome, int, error) {
	switch {
	case c.UserID != nil:
		if err := s.Store.MarkClaimed(ctx, c.ProducerID, now); err != nil {
			return 0, 0, fmt.Errorf("mark claimed: %w", err)
		}
		return outcomeClaimed, 0, nil
	case c.EmailStep == nil:
		out, err := s.start(ctx, now, c)
		return out, 1, err
	case *c.EmailStep < MaxStep:
		out, err := s.followUp(ctx, now, c, *c.EmailStep)
		return out, *c.EmailStep + 1, err
	default:
		return outcomeSkipped, *c.EmailStep, nil
	}
}

// start sends the first email. The state row is inserted before anything else
// so a concurrent run cannot also claim the producer; if a later step fails the
// row is removed and the producer is picked up as new again next run.
func (s *Scheduler) start(ctx context.Context, now time.Time, c Candidate) (outcome, error) {
	next := now.Add(StepInterval)
	st := &EmailState{
		ProducerID:    c.ProducerID,
		EmailStep:     1,
		LastEmailSent: &now,
		NextEmailAt:   &next,
		Metadata:      datatypes.NewJSONType(Metadata{RunEmailIDs: []string{}}),
	}
	ok, err := s.Store.InsertIfAbsent(ctx, st)
	if err != nil {
		return 0, fmt.Errorf("insert outreach state: %w", err)
	}
	if !ok {
		return outcomeSkipped, nil
	}

	inv, err := s.Invitations.EnsureForProducer(ctx, c.ProducerID, c.Email)
	if err != nil {
		s.rollbackStart(ctx, c.ProducerID)
		return 0, fmt.Errorf("claim invitation: %w", err)
	}
	id, err := s.send(ctx, c, 1, s.Invitations.ClaimURL(inv))
	if err != nil {
		s.rollbackStart(ctx, c.ProducerID)
		return 0, err
	}
	return outcomeSent, s.record(ctx, c.ProducerID, id)
}

func (s *Scheduler) rollbackStart(ctx context.Context, producerID uuid.UUID) {
	if err := s.Store.Delete(ctx, producerID, 1); err != nil {
		s.Log.Error("outreach state rollback failed",
			zap.String("producer_id", producerID.String()),
			zap.Error(err),
		)
	}
}

// followUp sends step from+1 only if this run wins the conditional update.
func (s *Scheduler) followUp(ctx context.Context, now time.Time, c Candidate, from int) (outcome, error) {
	upd := NextStep(from, now)
	ok, err := s.Store.Advance(ctx, c.ProducerID, from, upd)
	if err != nil {
		return 0, fmt.Errorf("advance outreach state: %w", err)
	}
	if !ok {
		s.Log.Info("outreach step taken by another run",
			zap.String("producer_id", c.ProducerID.String()),
			zap.Int("step", from),
		)
		return outcomeSkipped, nil
	}

	inv, err := s.Invitations.EnsureForProducer(ctx, c.ProducerID, c.Email)
	if err != nil {
		return 0, fmt.Errorf("claim invitation: %w", err)
	}
	id, err := s.send(ctx, c, upd.Step, s.Invitations.ClaimURL(inv))
	if err != nil {
		return 0, err
	}
	return outcomeSent, s.record(ctx, c.ProducerID, id)
}

func (s *Scheduler) send(ctx context.Context, c Candidate, step int, claimLink string) (string, error) {
	if step < 1 || step > MaxStep || s.Templates[step-1] == "" {
		return "", fmt.Errorf("%w %d", ErrNoTemplate, step)
	}
	id, err := s.Mailer.Send(ctx, email.Message{
		To:         c.Email,
		TemplateID: s.Templates[step-1],
		Variables: map[string]string{
			"claimLink":    claimLink,
			"producerName": c.ProducerName,
		},
	})
	if err != nil {
		return "", fmt.Errorf("send step %d: %w", step, err)
	}
	s.Log.Info("outreach email sent",
		zap.String("producer_id", c.ProducerID.String()),
		zap.Int("step", step),
		zap.String("message_id", id),
	)
	return id, nil
}

func (s *Scheduler) record(ctx context.Context, producerID uuid.UUID, emailID string) error {
	if err := s.Store.AppendEmailID(ctx, producerID, emailID); err != nil {
		return fmt.Errorf("record email id %s: %w", emailID, err)
	}
	return nil
}
