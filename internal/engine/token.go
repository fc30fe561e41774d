package engine

import (
	"context"
	"database/sql"

	"ideaforge/internal/domain"
	"ideaforge/internal/engine/auth"
	"ideaforge/internal/events"
	"ideaforge/internal/repo"
)

// Mint allocates the next token ID and assigns it to recipient. The uri never changes afterwards.
func (e Engine) Mint(ctx context.Context, caller, recipient domain.Principal, uri string) (domain.Token, error) {
	if recipient == "" {
		return domain.Token{}, invalidArgument("recipient is required")
	}
	var t domain.Token
	err := e.mutate(ctx, func(tx *sql.Tx) (domain.Event, error) {
		id, err := e.Repo.NextID(ctx, tx, domain.RegistryToken)
		if err != nil {
			return domain.Event{}, err
		}
		now := e.timestamp()
		t = domain.Token{ID: id, Owner: recipient, URI: uri, MintedAt: now, UpdatedAt: now}
		if err := e.Repo.InsertToken(ctx, tx, t); err != nil {
			return domain.Event{}, err
		}
		return e.writer().Append(ctx, tx, events.TokenMinted, domain.RegistryToken, id, caller, events.EventPayload{
			"owner": recipient,
			"uri":   uri,
		})
	})
	if err != nil {
		return domain.Token{}, err
	}
	return t, nil
}

// Transfer hands token id from its current owner to recipient. Only the owner
// may transfer; transferring to oneself succeeds and leaves the owner as is.
func (e Engine) Transfer(ctx context.Context, id int64, caller, recipient domain.Principal) (domain.Token, error) {
	var t domain.Token
	err := e.mutate(ctx, func(tx *sql.Tx) (domain.Event, error) {
		var err error
		t, err = e.Repo.GetToken(ctx, tx, id)
		if err != nil {
			return domain.Event{}, err
		}
		if err := auth.RequireOwner(id, caller, t.Owner); err != nil {
			return domain.Event{}, err
		}
		if recipient == "" {
			return domain.Event{}, invalidArgument("recipient is required")
		}
		from := t.Owner
		now := e.timestamp()
		if err := e.Repo.UpdateTokenOwner(ctx, tx, id, recipient, now); err != nil {
			return domain.Event{}, err
		}
		t.Owner = recipient
		t.UpdatedAt = now
		return e.writer().Append(ctx, tx, events.TokenTransferred, domain.RegistryToken, id, caller, events.EventPayload{
			"from": from,
			"to":   recipient,
		})
	})
	if err != nil {
		return domain.Token{}, err
	}
	return t, nil
}

func (e Engine) GetToken(ctx context.Context, id int64) (domain.Token, error) {
	return e.Repo.GetToken(ctx, nil, id)
}

func (e Engine) GetOwner(ctx context.Context, id int64) (domain.Principal, error) {
	t, err := e.Repo.GetToken(ctx, nil, id)
	if err != nil {
		return "", err
	}
	return t.Owner, nil
}

func (e Engine) GetTokenURI(ctx context.Context, id int64) (string, error) {
	t, err := e.Repo.GetToken(ctx, nil, id)
	if err != nil {
		return "", err
	}
	return t.URI, nil
}

func (e Engine) LastTokenID(ctx context.Context) (int64, error) {
	return e.LastID(ctx, domain.RegistryToken)
}

func (e Engine) ListTokens(ctx context.Context, f repo.ListFilters) ([]domain.Token, error) {
	return e.Repo.ListTokens(ctx, f)
}
