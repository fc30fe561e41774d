package engine

import (
	"context"
	"database/sql"

	"ideaforge/internal/domain"
	"ideaforge/internal/events"
	"ideaforge/internal/repo"
)

// SubmitSolution stores a pending submission against challengeID. The
// challenge is not looked up; submissions only reference it by number.
func (e Engine) SubmitSolution(ctx context.Context, caller domain.Principal, challengeID int64, content string) (domain.Submission, error) {
	var s domain.Submission
	err := e.mutate(ctx, func(tx *sql.Tx) (domain.Event, error) {
		id, err := e.Repo.NextID(ctx, tx, domain.RegistrySubmission)
		if err != nil {
			return domain.Event{}, err
		}
		s = domain.Submission{
			ID:          id,
			ChallengeID: challengeID,
			Submitter:   caller,
			Content:     content,
			Status:      domain.SubmissionPending,
			CreatedAt:   e.timestamp(),
		}
		if err := e.Repo.InsertSubmission(ctx, tx, s); err != nil {
			return domain.Event{}, err
		}
		return e.writer().Append(ctx, tx, events.SubmissionCreated, domain.RegistrySubmission, id, caller, events.EventPayload{
			"challenge_id": challengeID,
			"status":       s.Status,
		})
	})
	if err != nil {
		return domain.Submission{}, err
	}
	return s, nil
}

// EvaluateSubmission settles a pending submission as accepted or rejected.
// Any other target, or a submission that is already settled, is an invalid transition.
func (e Engine) EvaluateSubmission(ctx context.Context, caller domain.Principal, id int64, status domain.SubmissionStatus) (domain.Submission, error) {
	var s domain.Submission
	err := e.mutate(ctx, func(tx *sql.Tx) (domain.Event, error) {
		var err error
		s, err = e.Repo.GetSubmission(ctx, tx, id)
		if err != nil {
			return domain.Event{}, err
		}
		if err := ensureTransition("submission", id, s.Status, status, domain.SubmissionPending); err != nil {
			return domain.Event{}, err
		}
		if !status.Terminal() {
			return domain.Event{}, InvalidTransitionError{Entity: "submission", ID: id, From: string(s.Status), To: string(status)}
		}
		from := s.Status
		now := e.timestamp()
		if err := e.Repo.UpdateSubmissionStatus(ctx, tx, id, status, &now); err != nil {
			return domain.Event{}, err
		}
		s.Status = status
		s.EvaluatedAt = &now
		return e.writer().Append(ctx, tx, events.SubmissionEvaluated, domain.RegistrySubmission, id, caller, events.EventPayload{
			"from": from,
			"to":   status,
		})
	})
	if err != nil {
		return domain.Submission{}, err
	}
	return s, nil
}

func (e Engine) GetSubmission(ctx context.Context, id int64) (domain.Submission, error) {
	return e.Repo.GetSubmission(ctx, nil, id)
}

func (e Engine) ListSubmissions(ctx context.Context, f repo.ListFilters) ([]domain.Submission, error) {
	if f.Status != "" {
		if _, err := domain.ParseSubmissionStatus(f.Status); err != nil {
			return nil, invalidArgument(err.Error())
		}
	}
	return e.Repo.ListSubmissions(ctx, f)
}
