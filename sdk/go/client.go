package forgesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal IdeaForge HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	// Principal is sent as X-Principal when the server opts into that header.
	Principal  string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

type Challenge struct {
	ID          int64   `json:"id"`
	Creator     string  `json:"creator"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Reward      int64   `json:"reward"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	ClosedAt    *string `json:"closed_at,omitempty"`
}

type Token struct {
	ID        int64  `json:"id"`
	Owner     string `json:"owner"`
	URI       string `json:"uri"`
	MintedAt  string `json:"minted_at"`
	UpdatedAt string `json:"updated_at"`
}

type Submission struct {
	ID          int64   `json:"id"`
	ChallengeID int64   `json:"challenge_id"`
	Submitter   string  `json:"submitter"`
	Content     string  `json:"content"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	EvaluatedAt *string `json:"evaluated_at,omitempty"`
}

type Evaluation struct {
	IdeaID    int64  `json:"idea_id"`
	Score     int64  `json:"score"`
	Feedback  string `json:"feedback"`
	Evaluator string `json:"evaluator"`
	UpdatedAt string `json:"updated_at"`
}

// Event represents a log entry.
type Event struct {
	ID       int64          `json:"id"`
	TS       string         `json:"ts"`
	Type     string         `json:"type"`
	Registry string         `json:"registry"`
	EntityID int64          `json:"entity_id"`
	Actor    string         `json:"actor"`
	Payload  map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and RequestID come from the error envelope when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// StatusCode returns the HTTP status carried by an APIError, or 0.
func StatusCode(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

func (c *Client) Oracle(ctx context.Context) (string, error) {
	var resp struct {
		Oracle string `json:"oracle"`
	}
	err := c.do(ctx, http.MethodGet, "oracle", nil, &resp)
	return resp.Oracle, err
}

func (c *Client) SetOracle(ctx context.Context, next string) error {
	return c.do(ctx, http.MethodPut, "oracle", map[string]any{"oracle": next}, nil)
}

// Evaluate records or overwrites the evaluation of an idea.
func (c *Client) Evaluate(ctx context.Context, ideaID, score int64, feedback string) (Evaluation, error) {
	var resp Evaluation
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("evaluations/%d", ideaID), map[string]any{
		"score":    score,
		"feedback": feedback,
	}, &resp)
	return resp, err
}

func (c *Client) Evaluation(ctx context.Context, ideaID int64) (Evaluation, error) {
	var resp Evaluation
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("evaluations/%d", ideaID), nil, &resp)
	return resp, err
}

func (c *Client) CreateChallenge(ctx context.Context, title, description string, reward int64) (Challenge, error) {
	var resp Challenge
	err := c.do(ctx, http.MethodPost, "challenges", map[string]any{
		"title":       title,
		"description": description,
		"reward":      reward,
	}, &resp)
	return resp, err
}

func (c *Client) CloseChallenge(ctx context.Context, id int64) (Challenge, error) {
	var resp Challenge
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("challenges/%d/close", id), nil, &resp)
	return resp, err
}

func (c *Client) Challenge(ctx context.Context, id int64) (Challenge, error) {
	var resp Challenge
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("challenges/%d", id), nil, &resp)
	return resp, err
}

func (c *Client) Mint(ctx context.Context, recipient, uri string) (Token, error) {
	var resp Token
	err := c.do(ctx, http.MethodPost, "tokens", map[string]any{"recipient": recipient, "uri": uri}, &resp)
	return resp, err
}

func (c *Client) Transfer(ctx context.Context, id int64, recipient string) (Token, error) {
	var resp Token
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tokens/%d/transfer", id), map[string]any{"recipient": recipient}, &resp)
	return resp, err
}

func (c *Client) Owner(ctx context.Context, id int64) (string, error) {
	var resp struct {
		Owner string `json:"owner"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tokens/%d/owner", id), nil, &resp)
	return resp.Owner, err
}

func (c *Client) TokenURI(ctx context.Context, id int64) (string, error) {
	var resp struct {
		URI string `json:"uri"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tokens/%d/uri", id), nil, &resp)
	return resp.URI, err
}

func (c *Client) LastTokenID(ctx context.Context) (int64, error) {
	var resp struct {
		LastID int64 `json:"last_id"`
	}
	err := c.do(ctx, http.MethodGet, "tokens/last-id", nil, &resp)
	return resp.LastID, err
}

func (c *Client) Submit(ctx context.Context, challengeID int64, content string) (Submission, error) {
	var resp Submission
	err := c.do(ctx, http.MethodPost, "submissions", map[string]any{
		"challenge_id": challengeID,
		"content":      content,
	}, &resp)
	return resp, err
}

// EvaluateSubmission settles a pending submission; status is "accepted" or "rejected".
func (c *Client) EvaluateSubmission(ctx context.Context, id int64, status string) (Submission, error) {
	var resp Submission
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("submissions/%d/evaluate", id), map[string]any{"status": status}, &resp)
	return resp, err
}

func (c *Client) Submission(ctx context.Context, id int64) (Submission, error) {
	var resp Submission
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("submissions/%d", id), nil, &resp)
	return resp, err
}

// EventsPage returns a newest-first page of events.
func (c *Client) EventsPage(ctx context.Context, registry string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if registry != "" {
		q.Set("registry", registry)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.Principal != "":
		req.Header.Set("X-Principal", c.Principal)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeAPIError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		RequestID string `json:"request_id"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.RequestID = env.RequestID
	}
	return apiErr
}

func (c *Client) url(endpoint string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	prefix := strings.Trim(c.BasePath, "/")
	if prefix != "" {
		base += "/" + prefix
	}
	return base + "/" + strings.TrimLeft(endpoint, "/")
}
