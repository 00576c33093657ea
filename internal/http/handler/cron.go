package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"eatauthentically/internal/auth"
	"eatauthentically/internal/lock"
	"eatauthentically/internal/outreach"

	"go.uber.org/zap"
)

type OutreachRunner interface {
	Run(ctx context.Context) (*outreach.Report, error)
}

// CronHandler is hit by the external scheduler once per day.
type CronHandler struct {
	Secret string
	Runner OutreachRunner
	Locker lock.Locker
	Log    *zap.Logger
}

const cronLockTTL = 30 * time.Minute

func (h *CronHandler) Run(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r)
	if !ok || h.Secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.Secret)) != 1 {
		http.Error(w, "Unauthorized", http.StatusBadRequest)
		return
	}

	// The run must finish even if the trigger disconnects.
	ctx := context.WithoutCancel(r.Context())

	var rep *outreach.Report
	ran, err := lock.Do(ctx, h.Locker, lock.OutreachRun, cronLockTTL, func(ctx context.Context) error {
		var err error
		rep, err = h.Runner.Run(ctx)
		return err
	})
	if err != nil {
		h.Log.Error("outreach run failed", zap.Error(err))
		http.Error(w, "outreach run failed", http.StatusInternalServerError)
		return
	}
	if !ran {
		http.Error(w, "outreach run already in progress", http.StatusConflict)
		return
	}

	h.Log.Info("cron handled",
		zap.Int("sent", rep.Sent),
		zap.Int("failures", len(rep.Failures)),
	)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Handled"))
}
