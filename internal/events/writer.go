package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"ideaforge/internal/domain"
)

// Event types appended by the registries.
const (
	OracleRotated       = "oracle.rotated"
	EvaluationRecorded  = "evaluation.recorded"
	ChallengeCreated    = "challenge.created"
	ChallengeClosed     = "challenge.closed"
	TokenMinted         = "token.minted"
	TokenTransferred    = "token.transferred"
	SubmissionCreated   = "submission.created"
	SubmissionEvaluated = "submission.evaluated"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event row inside the caller's transaction, so the event
// commits or rolls back together with the mutation it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType string, registry domain.Registry, entityID int64, actor domain.Principal, payload EventPayload) (domain.Event, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}
	evt := domain.Event{
		TS:       w.Now().UTC().Format(time.RFC3339),
		Type:     evtType,
		Registry: registry,
		EntityID: entityID,
		Actor:    actor,
		Payload:  string(data),
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,registry,entity_id,actor,payload_json) VALUES (?,?,?,?,?,?)`,
		evt.TS, evt.Type, string(evt.Registry), evt.EntityID, string(evt.Actor), evt.Payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("append event %s: %w", evtType, err)
	}
	evt.ID, _ = res.LastInsertId()
	return evt, nil
}
