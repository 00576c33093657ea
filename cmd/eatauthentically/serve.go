package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"eatauthentically/internal/auth"
	"eatauthentically/internal/db"
	httpx "eatauthentically/internal/http"
	"eatauthentically/internal/jobs"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (and the background worker when WORKER_ENABLED=true)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := db.AutoMigrateAndIndexes(a.db); err != nil {
		return err
	}

	r := httpx.NewRouter(a.cfg, httpx.Deps{
		DB:       a.db,
		JWT:      auth.NewJWT(a.cfg.JWTSecret),
		Claims:   a.claims,
		Outreach: a.scheduler,
		Locker:   a.locker,
		Log:      a.log,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	workerDone := closedChan()
	if a.cfg.WorkerEnabled {
		worker := &jobs.Worker{
			ID:               workerID(),
			Queue:            &jobs.Repo{DB: a.db},
			Outreach:         a.scheduler,
			Claims:           a.claims,
			Locker:           a.locker,
			Log:              a.log.Named("worker"),
			OutreachInterval: a.cfg.OutreachInterval,
			SweepInterval:    time.Hour,
			PollInterval:     5 * time.Second,
			Now:              time.Now,
		}
		workerDone = startWorker(ctx, worker, a.log)
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("listening", zap.String("addr", a.cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		err = srv.Shutdown(shutdownCtx)
	}

	// The deferred close drops the database pool; the worker must be out first.
	cancel()
	<-workerDone
	return err
}

type backgroundWorker interface {
	Start(ctx context.Context) error
}

// startWorker runs w until ctx ends. The returned channel closes once Start
// has returned.
func startWorker(ctx context.Context, w backgroundWorker, log *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("worker stopped", zap.Error(err))
		}
	}()
	return done
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// workerID identifies this process in jobs.locked_by.
func workerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
