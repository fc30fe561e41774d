package repo

import (
	"context"
	"fmt"

	"ideaforge/internal/domain"
)

type EventFilters struct {
	Registry domain.Registry
	Type     string
	EntityID int64
	Before   int64
	Limit    int
}

// LatestEvents returns newest-first events matching the filters.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	var clauses []string
	var args []any
	if f.Registry != "" {
		clauses = append(clauses, "registry=?")
		args = append(args, string(f.Registry))
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityID > 0 {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Before > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Before)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT id,ts,type,registry,entity_id,actor,payload_json FROM events%s ORDER BY id DESC LIMIT ?`, where(clauses))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryEvents(ctx, `SELECT id,ts,type,registry,entity_id,actor,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

// LatestEventID returns the most recent event ID, 0 for an empty log.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var registry, actor string
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &registry, &e.EntityID, &actor, &e.Payload); err != nil {
			return nil, err
		}
		e.Registry = domain.Registry(registry)
		e.Actor = domain.Principal(actor)
		res = append(res, e)
	}
	return res, rows.Err()
}
