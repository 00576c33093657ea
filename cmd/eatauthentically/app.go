package main

import (
	"fmt"

	"eatauthentically/internal/claim"
	"eatauthentically/internal/config"
	"eatauthentically/internal/db"
	"eatauthentically/internal/email"
	"eatauthentically/internal/lock"
	"eatauthentically/internal/logging"
	"eatauthentically/internal/outreach"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds everything a subcommand may need, built from the environment.
type app struct {
	cfg       config.Config
	log       *zap.Logger
	db        *gorm.DB
	locker    lock.Locker
	claims    *claim.Service
	scheduler *outreach.Scheduler

	closers []func() error
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	a := &app{cfg: cfg, log: log, db: gdb, locker: lock.NopLocker{}}
	if sqlDB, err := gdb.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	if cfg.RedisURL != "" {
		rl, err := lock.NewRedisLocker(cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.locker = rl
		a.closers = append(a.closers, rl.Close)
	}

	var mailer email.Sender = &email.LogSender{Log: log}
	if cfg.EmailProvider == "resend" {
		mailer = email.NewResend(cfg.ResendAPIKey, cfg.EmailFrom, cfg.ResendBaseURL)
	}

	a.claims = claim.NewService(&claim.GormStore{DB: gdb}, cfg.SiteURL, log)
	a.scheduler = outreach.NewScheduler(&outreach.GormStore{DB: gdb}, a.claims, mailer, cfg.OutreachTemplates, log)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	_ = a.log.Sync()
}
