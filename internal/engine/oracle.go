package engine

import (
	"context"
	"database/sql"
	"errors"

	"ideaforge/internal/domain"
	"ideaforge/internal/engine/auth"
	"ideaforge/internal/events"
	"ideaforge/internal/repo"
)

// currentOracle reads the oracle, seeding the configured admin on first use.
func (e Engine) currentOracle(ctx context.Context, tx *sql.Tx) (domain.Principal, error) {
	p, err := e.Repo.GetOracle(ctx, tx)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return "", err
	}
	if _, err := e.Repo.SeedOracle(ctx, tx, e.admin(), e.timestamp()); err != nil {
		return "", err
	}
	return e.Repo.GetOracle(ctx, tx)
}

// GetOracle returns the principal currently allowed to evaluate ideas.
func (e Engine) GetOracle(ctx context.Context) (domain.Principal, error) {
	p, err := e.Repo.GetOracle(ctx, nil)
	if errors.Is(err, repo.ErrNotFound) {
		return e.admin(), nil
	}
	return p, err
}

// SetOracle replaces the oracle. Only the current oracle may rotate it.
func (e Engine) SetOracle(ctx context.Context, caller, next domain.Principal) (domain.Principal, error) {
	err := e.mutate(ctx, func(tx *sql.Tx) (domain.Event, error) {
		current, err := e.currentOracle(ctx, tx)
		if err != nil {
			return domain.Event{}, err
		}
		if err := auth.Authorize(caller, current); err != nil {
			return domain.Event{}, err
		}
		if next == "" {
			return domain.Event{}, invalidArgument("oracle principal is required")
		}
		if err := e.Repo.SetOracle(ctx, tx, next, e.timestamp()); err != nil {
			return domain.Event{}, err
		}
		return e.writer().Append(ctx, tx, events.OracleRotated, domain.RegistryOracle, 1, caller, events.EventPayload{
			"from": current,
			"to":   next,
		})
	})
	if err != nil {
		return "", err
	}
	return next, nil
}

// Evaluate records a score and feedback for an idea. A later evaluation of the
// same idea overwrites the earlier one.
func (e Engine) Evaluate(ctx context.Context, caller domain.Principal, ideaID, score int64, feedback string) (domain.Evaluation, error) {
	ev := domain.Evaluation{
		IdeaID:    ideaID,
		Score:     score,
		Feedback:  feedback,
		Evaluator: caller,
		UpdatedAt: e.timestamp(),
	}
	err := e.mutate(ctx, func(tx *sql.Tx) (domain.Event, error) {
		current, err := e.currentOracle(ctx, tx)
		if err != nil {
			return domain.Event{}, err
		}
		if err := auth.Authorize(caller, current); err != nil {
			return domain.Event{}, err
		}
		if err := e.Repo.UpsertEvaluation(ctx, tx, ev); err != nil {
			return domain.Event{}, err
		}
		return e.writer().Append(ctx, tx, events.EvaluationRecorded, domain.RegistryOracle, ideaID, caller, events.EventPayload{
			"score":    score,
			"feedback": feedback,
		})
	})
	if err != nil {
		return domain.Evaluation{}, err
	}
	return ev, nil
}

func (e Engine) GetEvaluation(ctx context.Context, ideaID int64) (domain.Evaluation, error) {
	return e.Repo.GetEvaluation(ctx, nil, ideaID)
}

func (e Engine) ListEvaluations(ctx context.Context, f repo.ListFilters) ([]domain.Evaluation, error) {
	return e.Repo.ListEvaluations(ctx, f)
}
