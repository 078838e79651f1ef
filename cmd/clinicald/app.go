package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mind-engage/mindengage-clinical/internal/auth"
	authmw "github.com/mind-engage/mindengage-clinical/internal/auth/middleware"
	"github.com/mind-engage/mindengage-clinical/internal/clinical"
	"github.com/mind-engage/mindengage-clinical/internal/config"
	"github.com/mind-engage/mindengage-clinical/internal/db"
	"github.com/mind-engage/mindengage-clinical/internal/engine"
	"github.com/mind-engage/mindengage-clinical/internal/lock"
	"github.com/mind-engage/mindengage-clinical/internal/session"
	"github.com/mind-engage/mindengage-clinical/internal/storage"
	syncx "github.com/mind-engage/mindengage-clinical/internal/sync"
)

// app holds every long-lived dependency a command needs.
type app struct {
	cfg    config.Config
	db     *sql.DB
	store  *clinical.SQLStore
	events *syncx.EventRepo
	pub    *syncx.AMQPPublisher
	redis  *redis.Client
	engine *engine.Engine
	users  *auth.Users
	auth   *authmw.AuthService

	// nil unless ARCHIVE_DIR is set
	archive storage.BlobStore
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{
		cfg:    cfg,
		db:     dbh,
		store:  clinical.NewSQLStore(dbh, cfg.DBDriver),
		events: syncx.NewEventRepo(dbh),
		users:  auth.NewUsers(dbh),
		auth:   authmw.NewAuthService(cfg.AuthHMACSecret, cfg.TokenTTL),
	}

	a.pub, err = syncx.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.ArchiveDir != "" {
		fs, err := storage.NewFSStore(cfg.ArchiveDir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
		a.archive = fs
	}

	var locker lock.Locker = lock.NewLocal(cfg.LockWait)
	if cfg.RedisAddr != "" {
		a.redis, err = lock.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			a.Close()
			return nil, err
		}
		locker = lock.NewRedis(a.redis, cfg.LockTTL, cfg.LockWait)
		slog.Info("using redis session locks", "addr", cfg.RedisAddr)
	}

	var pub syncx.Publisher
	if a.pub.Enabled() {
		pub = a.pub
	}
	emitter := syncx.NewEmitter(a.events, pub, cfg.SiteID, slog.Default())
	machine := session.NewMachine(a.store, session.WithEmitter(emitter), session.WithLogger(slog.Default()))
	a.engine = engine.New(a.store, machine,
		engine.WithLocker(locker),
		engine.WithLogger(slog.Default()),
		engine.WithTotals(engine.Totals{
			Examination: cfg.ExaminationOptionTotal,
			Diagnosis:   cfg.DiagnosisOptionTotal,
			Treatment:   cfg.TreatmentOptionTotal,
		}),
	)
	return a, nil
}

func (a *app) Close() {
	if a.pub != nil {
		if err := a.pub.Close(); err != nil {
			slog.Warn("close publisher", "err", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
