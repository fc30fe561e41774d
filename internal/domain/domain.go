package domain

import "fmt"

// Principal is an already-authenticated caller identity. Only equality is meaningful.
type Principal string

func (p Principal) String() string { return string(p) }

// Registry names the independent record stores. Each has its own allocator.
type Registry string

const (
	RegistryOracle     Registry = "oracle"
	RegistryChallenge  Registry = "challenge"
	RegistryToken      Registry = "token"
	RegistrySubmission Registry = "submission"
)

type ChallengeStatus string

const (
	ChallengeOpen   ChallengeStatus = "open"
	ChallengeClosed ChallengeStatus = "closed"
)

// ParseChallengeStatus rejects any label outside the closed set.
func ParseChallengeStatus(s string) (ChallengeStatus, error) {
	switch ChallengeStatus(s) {
	case ChallengeOpen, ChallengeClosed:
		return ChallengeStatus(s), nil
	}
	return "", fmt.Errorf("unknown challenge status %q", s)
}

type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionAccepted SubmissionStatus = "accepted"
	SubmissionRejected SubmissionStatus = "rejected"
)

// ParseSubmissionStatus rejects any label outside the closed set.
func ParseSubmissionStatus(s string) (SubmissionStatus, error) {
	switch SubmissionStatus(s) {
	case SubmissionPending, SubmissionAccepted, SubmissionRejected:
		return SubmissionStatus(s), nil
	}
	return "", fmt.Errorf("unknown submission status %q", s)
}

// Terminal reports whether no further transition is allowed from s.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionAccepted || s == SubmissionRejected
}

type Evaluation struct {
	IdeaID    int64     `json:"idea_id"`
	Score     int64     `json:"score"`
	Feedback  string    `json:"feedback"`
	Evaluator Principal `json:"evaluator"`
	UpdatedAt string    `json:"updated_at" format:"date-time"`
}

type Challenge struct {
	ID          int64           `json:"id"`
	Creator     Principal       `json:"creator"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Reward      int64           `json:"reward"`
	Status      ChallengeStatus `json:"status" enum:"open,closed"`
	CreatedAt   string          `json:"created_at" format:"date-time"`
	ClosedAt    *string         `json:"closed_at,omitempty" format:"date-time"`
}

type Token struct {
	ID        int64     `json:"id"`
	Owner     Principal `json:"owner"`
	URI       string    `json:"uri"`
	MintedAt  string    `json:"minted_at" format:"date-time"`
	UpdatedAt string    `json:"updated_at" format:"date-time"`
}

type Submission struct {
	ID          int64            `json:"id"`
	ChallengeID int64            `json:"challenge_id"`
	Submitter   Principal        `json:"submitter"`
	Content     string           `json:"content"`
	Status      SubmissionStatus `json:"status" enum:"pending,accepted,rejected"`
	CreatedAt   string           `json:"created_at" format:"date-time"`
	EvaluatedAt *string          `json:"evaluated_at,omitempty" format:"date-time"`
}

type Event struct {
	ID       int64     `json:"id"`
	TS       string    `json:"ts" format:"date-time"`
	Type     string    `json:"type"`
	Registry Registry  `json:"registry"`
	EntityID int64     `json:"entity_id"`
	Actor    Principal `json:"actor"`
	Payload  string    `json:"payload_json"`
}

type APIKey struct {
	ID        string    `json:"id"`
	Principal Principal `json:"principal"`
	Name      string    `json:"name,omitempty"`
	KeyHash   string    `json:"-"`
	CreatedAt string    `json:"created_at" format:"date-time"`
}
