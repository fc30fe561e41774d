package server

import (
	"encoding/json"

	"ideaforge/internal/domain"
)

// Request payloads

type SetOracleRequest struct {
	Oracle string `json:"oracle" doc:"Principal that becomes the oracle"`
}

type EvaluateIdeaRequest struct {
	Score    int64  `json:"score" minimum:"0"`
	Feedback string `json:"feedback,omitempty"`
}

type CreateChallengeRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Reward      int64  `json:"reward" minimum:"0"`
}

type MintTokenRequest struct {
	Recipient string `json:"recipient"`
	URI       string `json:"uri"`
}

type TransferTokenRequest struct {
	Recipient string `json:"recipient"`
}

type SubmitSolutionRequest struct {
	ChallengeID int64  `json:"challenge_id" minimum:"0"`
	Content     string `json:"content,omitempty"`
}

type EvaluateSubmissionRequest struct {
	Status string `json:"status" enum:"accepted,rejected"`
}

type DevLoginRequest struct {
	Principal string `json:"principal"`
}

// Response payloads

type OracleResponse struct {
	Oracle domain.Principal `json:"oracle"`
}

type OwnerResponse struct {
	TokenID int64            `json:"token_id"`
	Owner   domain.Principal `json:"owner"`
}

type TokenURIResponse struct {
	TokenID int64  `json:"token_id"`
	URI     string `json:"uri"`
}

type LastIDResponse struct {
	Registry domain.Registry `json:"registry"`
	LastID   int64           `json:"last_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type EventResponse struct {
	ID       int64          `json:"id"`
	TS       string         `json:"ts" format:"date-time"`
	Type     string         `json:"type"`
	Registry string         `json:"registry"`
	EntityID int64          `json:"entity_id"`
	Actor    string         `json:"actor"`
	Payload  map[string]any `json:"payload"`
}

type paginatedEvaluations struct {
	Items      []domain.Evaluation `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

type paginatedChallenges struct {
	Items      []domain.Challenge `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

type paginatedTokens struct {
	Items      []domain.Token `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type paginatedSubmissions struct {
	Items      []domain.Submission `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Handler outputs

type oracleOutput struct {
	Body OracleResponse `json:"body"`
}

type evaluationOutput struct {
	Body domain.Evaluation `json:"body"`
}

type evaluationsOutput struct {
	Body paginatedEvaluations `json:"body"`
}

type challengeOutput struct {
	Body domain.Challenge `json:"body"`
}

type challengesOutput struct {
	Body paginatedChallenges `json:"body"`
}

type tokenOutput struct {
	Body domain.Token `json:"body"`
}

type tokensOutput struct {
	Body paginatedTokens `json:"body"`
}

type submissionOutput struct {
	Body domain.Submission `json:"body"`
}

type submissionsOutput struct {
	Body paginatedSubmissions `json:"body"`
}

type eventsOutput struct {
	Body paginatedEvents `json:"body"`
}

// Conversion helpers

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:       e.ID,
		TS:       e.TS,
		Type:     e.Type,
		Registry: string(e.Registry),
		EntityID: e.EntityID,
		Actor:    e.Actor.String(),
		Payload:  decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func registryParam(s string) domain.Registry {
	return domain.Registry(s)
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
