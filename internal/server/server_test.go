package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ideaforge/internal/config"
	"ideaforge/internal/db"
	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/migrate"
	"ideaforge/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestEngine(t *testing.T, cfg *config.Config) engine.Engine {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return e
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	e := newTestEngine(t, config.Default())
	handler, err := New(Config{Engine: e, BasePath: "/v1", Auth: AuthConfig{JWTSecret: testSecret, AllowPrincipalHeader: true}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func as(p domain.Principal) map[string]string {
	return map[string]string{"X-Principal": p.String()}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	reader := bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func expectError(t *testing.T, res *http.Response, data []byte, status int, code string) errorEnvelope {
	t.Helper()
	if res.StatusCode != status {
		t.Fatalf("expected status %d, got %d: %s", status, res.StatusCode, string(data))
	}
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error: %v (%s)", err, string(data))
	}
	if code != "" && env.Error.Code != code {
		t.Fatalf("expected code %s, got %s", code, env.Error.Code)
	}
	if !strings.HasPrefix(env.RequestID, "req_") {
		t.Fatalf("missing request id: %s", string(data))
	}
	return env
}

func TestHealthIsPublicAndRegistriesRequireAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tokens", nil, nil)
	expectError(t, res, data, http.StatusUnauthorized, "unauthorized")
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tokens", nil, map[string]string{"Authorization": "Bearer nope"})
	expectError(t, res, data, http.StatusUnauthorized, "invalid_credentials")
}

func TestTokenTransferOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tokens", map[string]any{"recipient": "ST-A", "uri": "uri1"}, as("ST-A"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("mint status %d: %s", res.StatusCode, string(data))
	}
	var tok domain.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	if tok.ID != 1 || tok.Owner != "ST-A" {
		t.Fatalf("unexpected token %+v", tok)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tokens/1/transfer", map[string]any{"recipient": "ST-B"}, as("ST-A"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("transfer status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tokens/1/transfer", map[string]any{"recipient": "ST-C"}, as("ST-A"))
	env := expectError(t, res, data, http.StatusForbidden, "not_owner")
	if env.Error.Details["token_id"] != float64(1) {
		t.Fatalf("expected token_id detail, got %v", env.Error.Details)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tokens/1/owner", nil, as("ST-C"))
	var owner OwnerResponse
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &owner) != nil || owner.Owner != "ST-B" {
		t.Fatalf("owner lookup: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tokens/1/uri", nil, as("ST-C"))
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"uri1"`) {
		t.Fatalf("uri lookup: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tokens/last-id", nil, as("ST-C"))
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"last_id":1`) {
		t.Fatalf("last id: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tokens/9/transfer", map[string]any{"recipient": "ST-C"}, as("ST-A"))
	expectError(t, res, data, http.StatusNotFound, "not_found")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tokens?owner=ST-B", nil, as("ST-B"))
	var list paginatedTokens
	if err := json.Unmarshal(data, &list); err != nil || len(list.Items) != 1 {
		t.Fatalf("list by owner: %d %s", res.StatusCode, string(data))
	}
}

func TestChallengeCloseTwiceIsInvalidTransition(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/challenges", map[string]any{
		"title": "T", "description": "D", "reward": 1000,
	}, as("ST-A"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create status %d: %s", res.StatusCode, string(data))
	}
	var c domain.Challenge
	if err := json.Unmarshal(data, &c); err != nil {
		t.Fatal(err)
	}
	if c.ID != 1 || c.Status != domain.ChallengeOpen || c.Creator != "ST-A" {
		t.Fatalf("unexpected challenge %+v", c)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/challenges/1/close", nil, as("ST-A"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("close status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/challenges/1/close", nil, as("ST-A"))
	expectError(t, res, data, http.StatusBadRequest, "invalid_transition")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/challenges", map[string]any{"title": "neg", "reward": -1}, as("ST-A"))
	expectError(t, res, data, http.StatusBadRequest, "")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/challenges?status=closed", nil, as("ST-A"))
	var list paginatedChallenges
	if err := json.Unmarshal(data, &list); err != nil || len(list.Items) != 1 || list.Items[0].ID != 1 {
		t.Fatalf("list closed: %d %s", res.StatusCode, string(data))
	}
}

func TestSubmissionEvaluation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/submissions", map[string]any{"challenge_id": 1, "content": "answer"}, as("ST-B"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/submissions/1/evaluate", map[string]any{"status": "pending"}, as("ST-A"))
	expectError(t, res, data, http.StatusBadRequest, "")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/submissions/1/evaluate", map[string]any{"status": "accepted"}, as("ST-A"))
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"accepted"`) {
		t.Fatalf("accept status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/submissions/1/evaluate", map[string]any{"status": "rejected"}, as("ST-A"))
	expectError(t, res, data, http.StatusBadRequest, "invalid_transition")
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/submissions/2/evaluate", map[string]any{"status": "rejected"}, as("ST-A"))
	expectError(t, res, data, http.StatusNotFound, "not_found")
}

func TestOracleRotationAndEvaluation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	admin := domain.Principal(config.DefaultAdmin)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/oracle", nil, as("ST-A"))
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), config.DefaultAdmin) {
		t.Fatalf("oracle: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/oracle", map[string]any{"oracle": "ST-A"}, as("ST-A"))
	expectError(t, res, data, http.StatusForbidden, "unauthorized")
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/oracle", map[string]any{"oracle": "ST-A"}, as(admin))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("rotate: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/evaluations/3", map[string]any{"score": 80, "feedback": "ok"}, as(admin))
	expectError(t, res, data, http.StatusForbidden, "unauthorized")
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/evaluations/3", map[string]any{"score": 80, "feedback": "ok"}, as("ST-A"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("evaluate: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/evaluations/3", nil, as("ST-B"))
	var ev domain.Evaluation
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &ev) != nil || ev.Score != 80 || ev.Evaluator != "ST-A" {
		t.Fatalf("get evaluation: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/evaluations/4", nil, as("ST-B"))
	expectError(t, res, data, http.StatusNotFound, "not_found")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?registry=oracle", nil, as("ST-B"))
	var evts paginatedEvents
	if err := json.Unmarshal(data, &evts); err != nil || len(evts.Items) != 2 {
		t.Fatalf("oracle events: %d %s", res.StatusCode, string(data))
	}
	if evts.Items[0].Type != "evaluation.recorded" || evts.Items[1].Payload["to"] != "ST-A" {
		t.Fatalf("unexpected events %+v", evts.Items)
	}
}

func TestDevLoginAndAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{"principal": "ST-JWT"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("token: %s", string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tokens", map[string]any{"recipient": "ST-JWT", "uri": "u"}, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("mint with jwt: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tokens/1/transfer", map[string]any{"recipient": "ST-KEY"}, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("transfer as jwt subject: %d %s", res.StatusCode, string(data))
	}

	ctx := context.Background()
	tx, err := srv.Engine.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Engine.Repo.InsertAPIKey(ctx, tx, domain.APIKey{
		ID:        "key-1",
		Principal: "ST-KEY",
		Name:      "ci",
		KeyHash:   repo.HashAPIKey("secret-key"),
		CreatedAt: "2024-01-01T00:00:00Z",
	}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tokens/1/transfer", map[string]any{"recipient": "ST-KEY"}, map[string]string{"X-Api-Key": "secret-key"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("transfer with api key: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tokens/1", nil, map[string]string{"X-Api-Key": "wrong"})
	expectError(t, res, data, http.StatusUnauthorized, "invalid_credentials")
}

func TestPrincipalHeaderIsOptIn(t *testing.T) {
	e := newTestEngine(t, config.Default())
	handler, err := New(Config{Engine: e, Auth: AuthConfig{JWTSecret: testSecret}})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/oracle", nil)
	req.Header.Set("X-Principal", "ST-A")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without opt-in, got %d", rec.Code)
	}
}

func TestWebhookDispatcherDeliversNewEvents(t *testing.T) {
	var mu sync.Mutex
	var got []map[string]any
	var headers []http.Header
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		got = append(got, body)
		headers = append(headers, r.Header.Clone())
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{URL: hook.URL, Events: []string{"token.transferred"}, Secret: "s3cret"}}
	e := newTestEngine(t, cfg)
	e.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	if _, err := e.Mint(ctx, "ST-A", "ST-A", "old"); err != nil {
		t.Fatal(err)
	}
	d := NewWebhookDispatcher(e, nil)
	d.Prime(ctx)
	if _, err := e.Mint(ctx, "ST-A", "ST-A", "u"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Transfer(ctx, 2, "ST-A", "ST-B"); err != nil {
		t.Fatal(err)
	}
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected one filtered delivery, got %d: %v", len(got), got)
	}
	if got[0]["type"] != "token.transferred" || got[0]["entity_id"] != float64(2) {
		t.Fatalf("unexpected delivery %v", got[0])
	}
	if headers[0].Get("X-Ideaforge-Event") != "token.transferred" || headers[0].Get("X-Ideaforge-Secret") != "s3cret" {
		t.Fatalf("unexpected headers %v", headers[0])
	}
}
