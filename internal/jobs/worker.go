package jobs

import (
	"context"
	"math"
	"time"

	"eatauthentically/internal/lock"
	"eatauthentically/internal/outreach"

	"go.uber.org/zap"
)

type Queue interface {
	EnsureScheduled(ctx context.Context, typ string, runAt time.Time) error
	Claim(ctx context.Context, workerID string) (*Job, error)
	MarkDone(ctx context.Context, id uint64) error
	MarkFailed(ctx context.Context, id uint64, errMsg string) error
	RetryLater(ctx context.Context, id uint64, attempts int, runAt time.Time, errMsg string) error
}

type OutreachRunner interface {
	Run(ctx context.Context) (*outreach.Report, error)
}

type InvitationSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Worker runs the recurring outreach and invitation-sweep jobs. Each job
// reschedules itself after it finishes.
type Worker struct {
	ID       string
	Queue    Queue
	Outreach OutreachRunner
	Claims   InvitationSweeper
	Locker   lock.Locker
	Log      *zap.Logger

	OutreachInterval time.Duration
	SweepInterval    time.Duration
	PollInterval     time.Duration
	Now              func() time.Time
}

const runLockTTL = 30 * time.Minute

func (w *Worker) Start(ctx context.Context) error {
	now := w.Now()
	for _, typ := range []string{TypeOutreachRun, TypeInvitationSweep} {
		if err := w.Queue.EnsureScheduled(ctx, typ, now); err != nil {
			return err
		}
	}
	w.Run(ctx)
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := w.Queue.Claim(ctx, w.ID)
			if err != nil {
				w.Log.Error("worker claim error", zap.Error(err))
				continue
			}
			if job == nil {
				continue
			}
			w.handle(ctx, job)
		}
	}
}

func (w *Worker) interval(typ string) time.Duration {
	if typ == TypeInvitationSweep {
		return w.SweepInterval
	}
	return w.OutreachInterval
}

func (w *Worker) handle(ctx context.Context, job *Job) {
	var err error
	switch job.Type {
	case TypeOutreachRun:
		err = w.runOutreach(ctx)
	case TypeInvitationSweep:
		_, err = w.Claims.SweepExpired(ctx)
	default:
		_ = w.Queue.MarkFailed(ctx, job.ID, "unknown job type")
		return
	}
	if err != nil {
		w.retry(ctx, job, err.Error())
		return
	}

	if err := w.Queue.MarkDone(ctx, job.ID); err != nil {
		w.Log.Error("mark job done", zap.Uint64("job_id", job.ID), zap.Error(err))
		return
	}
	w.reschedule(ctx, job.Type)
}

func (w *Worker) runOutreach(ctx context.Context) error {
	ran, err := lock.Do(ctx, w.Locker, lock.OutreachRun, runLockTTL, func(ctx context.Context) error {
		_, err := w.Outreach.Run(ctx)
		return err
	})
	if err == nil && !ran {
		w.Log.Info("outreach run already in progress elsewhere, skipping")
	}
	return err
}

func (w *Worker) reschedule(ctx context.Context, typ string) {
	if err := w.Queue.EnsureScheduled(ctx, typ, w.Now().Add(w.interval(typ))); err != nil {
		w.Log.Error("reschedule job", zap.String("type", typ), zap.Error(err))
	}
}

func (w *Worker) retry(ctx context.Context, job *Job, errMsg string) {
	attempts := job.Attempts + 1
	w.Log.Warn("job failed",
		zap.Uint64("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempts", attempts),
		zap.String("error", errMsg),
	)
	if attempts >= job.MaxAttempts {
		_ = w.Queue.MarkFailed(ctx, job.ID, errMsg)
		w.reschedule(ctx, job.Type)
		return
	}

	sec := math.Min(math.Pow(2, float64(attempts)), 600)
	next := w.Now().Add(time.Duration(sec) * time.Second)

	_ = w.Queue.RetryLater(ctx, job.ID, attempts, next, errMsg)
}
