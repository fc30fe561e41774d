package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"ideaforge/internal/config"
	"ideaforge/internal/domain"
	"ideaforge/internal/events"
	"ideaforge/internal/repo"
)

// Engine owns the four registries. It is constructed once by the host and
// passed to every operation; nothing is kept in package state.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Publisher events.Publisher
	Config    *config.Config
	Logger    *log.Logger
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// writer shares the engine clock so event timestamps match record timestamps.
func (e Engine) writer() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func (e Engine) admin() domain.Principal {
	if e.Config == nil || e.Config.Ledger.Admin == "" {
		return domain.Principal(config.DefaultAdmin)
	}
	return domain.Principal(e.Config.Ledger.Admin)
}

// Bootstrap installs the configured admin as the oracle on a fresh ledger and
// returns the current oracle. It is a no-op once an oracle exists.
func (e Engine) Bootstrap(ctx context.Context) (domain.Principal, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	p, err := e.currentOracle(ctx, tx)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return p, nil
}

// mutate runs fn in a single transaction. Nothing fn wrote survives an error,
// and the event it returns is published only after commit.
func (e Engine) mutate(ctx context.Context, fn func(tx *sql.Tx) (domain.Event, error)) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	evt, err := fn(tx)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	e.publish(ctx, evt)
	return nil
}

func (e Engine) publish(ctx context.Context, evt domain.Event) {
	if e.Publisher == nil || evt.Type == "" {
		return
	}
	if err := e.Publisher.Publish(ctx, evt); err != nil {
		e.logger().Printf("[WARN] publish %s (event %d) failed: %v", evt.Type, evt.ID, err)
	}
}

// LastID returns the last identifier a registry allocated, 0 before the first create.
func (e Engine) LastID(ctx context.Context, registry domain.Registry) (int64, error) {
	return e.Repo.LastID(ctx, nil, registry)
}

// InvalidTransitionError reports a status change that is not legal from the current status.
type InvalidTransitionError struct {
	Entity string
	ID     int64
	From   string
	To     string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s %d status transition %s -> %s", e.Entity, e.ID, e.From, e.To)
}

// ErrNotFound is returned when a referenced ID does not exist in the registry.
var ErrNotFound = repo.ErrNotFound

// ErrInvalidArgument marks malformed input rejected before any state is read.
var ErrInvalidArgument = errors.New("invalid argument")

// ensureTransition is the transition guard shared by every status lifecycle.
func ensureTransition[S ~string](entity string, id int64, current, next S, allowedFrom ...S) error {
	for _, from := range allowedFrom {
		if current == from {
			return nil
		}
	}
	return InvalidTransitionError{Entity: entity, ID: id, From: string(current), To: string(next)}
}

func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}
