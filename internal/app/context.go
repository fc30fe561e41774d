package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"ideaforge/internal/config"
	"ideaforge/internal/db"
	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/events"
	"ideaforge/internal/migrate"
)

// Runtime is one opened workspace: its config, ledger connection, engine and
// the optional Redis publisher the engine hands committed events to.
type Runtime struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Publisher *events.RedisPublisher
	Oracle    domain.Principal
}

type Options struct {
	Workspace string
	// AdminOverride replaces ledger.admin from the config file when set.
	AdminOverride string
	Logger        *log.Logger
}

// Open loads the workspace config, migrates the ledger and installs the
// bootstrap oracle if the ledger is fresh.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if opts.AdminOverride != "" {
		cfg.Ledger.Admin = opts.AdminOverride
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	e := engine.New(conn, cfg)
	e.Logger = logger
	rt := &Runtime{Workspace: opts.Workspace, Config: cfg, DB: conn, Engine: e}

	if cfg.Events.Redis.Addr != "" {
		pub, err := events.NewRedisPublisher(&redis.Options{
			Addr:     cfg.Events.Redis.Addr,
			Password: cfg.Events.Redis.Password,
			DB:       cfg.Events.Redis.DB,
		}, cfg.Events.Redis.Channel)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("redis publisher: %w", err)
		}
		if err := pub.Ping(ctx); err != nil {
			logger.Printf("[WARN] redis %s unreachable at startup; publish failures will be logged: %v", cfg.Events.Redis.Addr, err)
		}
		rt.Publisher = pub
		rt.Engine.Publisher = pub
	}

	oracle, err := rt.Engine.Bootstrap(ctx)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("bootstrap oracle: %w", err)
	}
	rt.Oracle = oracle
	return rt, nil
}

func (r *Runtime) Close() error {
	if r.Publisher != nil {
		r.Publisher.Close()
	}
	return r.DB.Close()
}
