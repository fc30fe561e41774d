package engine

import (
	"context"
	"database/sql"

	"ideaforge/internal/domain"
	"ideaforge/internal/events"
	"ideaforge/internal/repo"
)

type ChallengeCreateOptions struct {
	Creator     domain.Principal
	Title       string
	Description string
	Reward      int64
}

// CreateChallenge allocates the next challenge ID and stores the challenge as open.
func (e Engine) CreateChallenge(ctx context.Context, opts ChallengeCreateOptions) (domain.Challenge, error) {
	var c domain.Challenge
	err := e.mutate(ctx, func(tx *sql.Tx) (domain.Event, error) {
		id, err := e.Repo.NextID(ctx, tx, domain.RegistryChallenge)
		if err != nil {
			return domain.Event{}, err
		}
		c = domain.Challenge{
			ID:          id,
			Creator:     opts.Creator,
			Title:       opts.Title,
			Description: opts.Description,
			Reward:      opts.Reward,
			Status:      domain.ChallengeOpen,
			CreatedAt:   e.timestamp(),
		}
		if err := e.Repo.InsertChallenge(ctx, tx, c); err != nil {
			return domain.Event{}, err
		}
		return e.writer().Append(ctx, tx, events.ChallengeCreated, domain.RegistryChallenge, id, opts.Creator, events.EventPayload{
			"title":  c.Title,
			"reward": c.Reward,
			"status": c.Status,
		})
	})
	if err != nil {
		return domain.Challenge{}, err
	}
	return c, nil
}

// CloseChallenge moves an open challenge to closed. Closed is terminal.
func (e Engine) CloseChallenge(ctx context.Context, caller domain.Principal, id int64) (domain.Challenge, error) {
	var c domain.Challenge
	err := e.mutate(ctx, func(tx *sql.Tx) (domain.Event, error) {
		var err error
		c, err = e.Repo.GetChallenge(ctx, tx, id)
		if err != nil {
			return domain.Event{}, err
		}
		if err := ensureTransition("challenge", id, c.Status, domain.ChallengeClosed, domain.ChallengeOpen); err != nil {
			return domain.Event{}, err
		}
		from := c.Status
		now := e.timestamp()
		if err := e.Repo.UpdateChallengeStatus(ctx, tx, id, domain.ChallengeClosed, &now); err != nil {
			return domain.Event{}, err
		}
		c.Status = domain.ChallengeClosed
		c.ClosedAt = &now
		return e.writer().Append(ctx, tx, events.ChallengeClosed, domain.RegistryChallenge, id, caller, events.EventPayload{
			"from": from,
			"to":   c.Status,
		})
	})
	if err != nil {
		return domain.Challenge{}, err
	}
	return c, nil
}

func (e Engine) GetChallenge(ctx context.Context, id int64) (domain.Challenge, error) {
	return e.Repo.GetChallenge(ctx, nil, id)
}

func (e Engine) ListChallenges(ctx context.Context, f repo.ListFilters) ([]domain.Challenge, error) {
	if f.Status != "" {
		if _, err := domain.ParseChallengeStatus(f.Status); err != nil {
			return nil, invalidArgument(err.Error())
		}
	}
	return e.Repo.ListChallenges(ctx, f)
}
