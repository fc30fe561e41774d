package engine_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"ideaforge/internal/config"
	"ideaforge/internal/db"
	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/engine/auth"
	"ideaforge/internal/migrate"
	"ideaforge/internal/repo"
)

const (
	admin = domain.Principal(config.DefaultAdmin)
	alice = domain.Principal("ST-ALICE")
	bob   = domain.Principal("ST-BOB")
	carol = domain.Principal("ST-CAROL")
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, domain.Event) error {
	p.calls++
	return fmt.Errorf("broker down")
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func assertCode(t *testing.T, err error, want int) {
	t.Helper()
	if got := engine.StatusCode(err); got != want {
		t.Fatalf("expected code %d, got %d (%v)", want, got, err)
	}
}

func TestTokenTransferScenario(t *testing.T) {
	env := newTestEnv(t)
	tok, err := env.Engine.Mint(env.Ctx, alice, alice, "uri1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if tok.ID != 1 || tok.Owner != alice {
		t.Fatalf("unexpected token %+v", tok)
	}
	if _, err := env.Engine.Transfer(env.Ctx, 1, alice, bob); err != nil {
		t.Fatalf("transfer to bob: %v", err)
	}
	_, err = env.Engine.Transfer(env.Ctx, 1, alice, carol)
	var ne auth.NotOwnerError
	if !errors.As(err, &ne) {
		t.Fatalf("expected NotOwnerError, got %v", err)
	}
	assertCode(t, err, http.StatusForbidden)
	owner, err := env.Engine.GetOwner(env.Ctx, 1)
	if err != nil || owner != bob {
		t.Fatalf("owner: %v %v", owner, err)
	}
	uri, err := env.Engine.GetTokenURI(env.Ctx, 1)
	if err != nil || uri != "uri1" {
		t.Fatalf("uri must survive transfers: %q %v", uri, err)
	}
}

func TestTokenSelfTransferAndMissing(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Mint(env.Ctx, admin, alice, "uri1"); err != nil {
		t.Fatal(err)
	}
	tok, err := env.Engine.Transfer(env.Ctx, 1, alice, alice)
	if err != nil || tok.Owner != alice {
		t.Fatalf("self transfer must succeed: %+v %v", tok, err)
	}
	_, err = env.Engine.Transfer(env.Ctx, 99, alice, bob)
	if !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	assertCode(t, err, http.StatusNotFound)
	if _, err := env.Engine.GetOwner(env.Ctx, 99); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("owner of missing token: %v", err)
	}
	_, err = env.Engine.Transfer(env.Ctx, 1, alice, "")
	assertCode(t, err, http.StatusBadRequest)
	if _, err := env.Engine.Mint(env.Ctx, admin, "", "uri2"); !errors.Is(err, engine.ErrInvalidArgument) {
		t.Fatalf("mint without recipient: %v", err)
	}
	last, err := env.Engine.LastTokenID(env.Ctx)
	if err != nil || last != 1 {
		t.Fatalf("rejected mint must not consume an id: %d %v", last, err)
	}
}

func TestChallengeCloseScenario(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.CreateChallenge(env.Ctx, engine.ChallengeCreateOptions{Creator: alice, Title: "T", Description: "D", Reward: 1000})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.ID != 1 || c.Status != domain.ChallengeOpen {
		t.Fatalf("unexpected challenge %+v", c)
	}
	if _, err := env.Engine.CloseChallenge(env.Ctx, alice, 1); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err = env.Engine.CloseChallenge(env.Ctx, alice, 1)
	var te engine.InvalidTransitionError
	if !errors.As(err, &te) || te.From != "closed" {
		t.Fatalf("expected invalid transition from closed, got %v", err)
	}
	assertCode(t, err, http.StatusBadRequest)

	got, err := env.Engine.GetChallenge(env.Ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.ChallengeClosed || got.Title != "T" || got.Description != "D" || got.Reward != 1000 || got.Creator != alice {
		t.Fatalf("close must only touch status: %+v", got)
	}
	if got.ClosedAt == nil {
		t.Fatalf("expected closed_at")
	}
	_, err = env.Engine.CloseChallenge(env.Ctx, alice, 42)
	assertCode(t, err, http.StatusNotFound)
}

func TestSubmissionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.SubmitSolution(env.Ctx, bob, 7, "answer")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s.ID != 1 || s.Status != domain.SubmissionPending || s.Submitter != bob || s.ChallengeID != 7 {
		t.Fatalf("unexpected submission %+v", s)
	}
	if _, err := env.Engine.EvaluateSubmission(env.Ctx, admin, 1, domain.SubmissionPending); err == nil {
		t.Fatalf("pending is not a terminal target")
	}
	if _, err := env.Engine.EvaluateSubmission(env.Ctx, admin, 1, domain.SubmissionAccepted); err != nil {
		t.Fatalf("accept: %v", err)
	}
	_, err = env.Engine.EvaluateSubmission(env.Ctx, admin, 1, domain.SubmissionRejected)
	assertCode(t, err, http.StatusBadRequest)
	got, err := env.Engine.GetSubmission(env.Ctx, 1)
	if err != nil || got.Status != domain.SubmissionAccepted || got.Content != "answer" {
		t.Fatalf("get after evaluate: %+v %v", got, err)
	}
	_, err = env.Engine.EvaluateSubmission(env.Ctx, admin, 5, domain.SubmissionAccepted)
	assertCode(t, err, http.StatusNotFound)

	list, err := env.Engine.ListSubmissions(env.Ctx, repo.ListFilters{ChallengeID: 7})
	if err != nil || len(list) != 1 {
		t.Fatalf("list by challenge: %v %v", list, err)
	}
	if _, err := env.Engine.ListSubmissions(env.Ctx, repo.ListFilters{Status: "bogus"}); !errors.Is(err, engine.ErrInvalidArgument) {
		t.Fatalf("unknown status filter: %v", err)
	}
}

func TestOracleRotation(t *testing.T) {
	env := newTestEnv(t)
	current, err := env.Engine.GetOracle(env.Ctx)
	if err != nil || current != admin {
		t.Fatalf("default oracle: %v %v", current, err)
	}
	_, err = env.Engine.SetOracle(env.Ctx, alice, alice)
	var ue auth.UnauthorizedError
	if !errors.As(err, &ue) || ue.Required != admin {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := env.Engine.SetOracle(env.Ctx, admin, ""); !errors.Is(err, engine.ErrInvalidArgument) {
		t.Fatalf("empty oracle: %v", err)
	}
	if _, err := env.Engine.SetOracle(env.Ctx, admin, alice); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := env.Engine.Evaluate(env.Ctx, admin, 1, 90, "stale"); !errors.As(err, &ue) {
		t.Fatalf("stale oracle must be unauthorized, got %v", err)
	}
	if _, err := env.Engine.Evaluate(env.Ctx, alice, 1, 90, "good"); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if _, err := env.Engine.Evaluate(env.Ctx, alice, 1, 40, "revised"); err != nil {
		t.Fatalf("re-evaluate: %v", err)
	}
	ev, err := env.Engine.GetEvaluation(env.Ctx, 1)
	if err != nil || ev.Score != 40 || ev.Feedback != "revised" || ev.Evaluator != alice {
		t.Fatalf("evaluation must be overwritten: %+v %v", ev, err)
	}
	_, err = env.Engine.GetEvaluation(env.Ctx, 2)
	assertCode(t, err, http.StatusNotFound)
}

func TestIDsAreDensePerRegistry(t *testing.T) {
	env := newTestEnv(t)
	for i := int64(1); i <= 3; i++ {
		c, err := env.Engine.CreateChallenge(env.Ctx, engine.ChallengeCreateOptions{Creator: alice, Title: fmt.Sprintf("c%d", i)})
		if err != nil || c.ID != i {
			t.Fatalf("challenge %d: %+v %v", i, c, err)
		}
	}
	tok, err := env.Engine.Mint(env.Ctx, alice, alice, "u")
	if err != nil || tok.ID != 1 {
		t.Fatalf("token ids are independent of challenge ids: %+v %v", tok, err)
	}
	last, err := env.Engine.LastID(env.Ctx, domain.RegistryChallenge)
	if err != nil || last != 3 {
		t.Fatalf("last challenge id: %d %v", last, err)
	}
	last, err = env.Engine.LastID(env.Ctx, domain.RegistrySubmission)
	if err != nil || last != 0 {
		t.Fatalf("unused registry: %d %v", last, err)
	}
}

func TestFailedCallsLeaveNoTrace(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Mint(env.Ctx, alice, alice, "u"); err != nil {
		t.Fatal(err)
	}
	before, err := env.Engine.Repo.LatestEventID(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = env.Engine.Transfer(env.Ctx, 1, bob, carol)
	_, _ = env.Engine.CloseChallenge(env.Ctx, alice, 3)
	_, _ = env.Engine.SetOracle(env.Ctx, bob, bob)
	_, _ = env.Engine.Evaluate(env.Ctx, bob, 1, 1, "x")
	after, err := env.Engine.Repo.LatestEventID(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if after != before {
		t.Fatalf("failed calls appended events: %d -> %d", before, after)
	}
	tok, err := env.Engine.GetToken(env.Ctx, 1)
	if err != nil || tok.Owner != alice {
		t.Fatalf("token changed: %+v %v", tok, err)
	}
}

func TestEventsRecordedAndPublishFailuresIgnored(t *testing.T) {
	env := newTestEnv(t)
	pub := &failingPublisher{}
	env.Engine.Publisher = pub
	if _, err := env.Engine.Mint(env.Ctx, alice, alice, "u"); err != nil {
		t.Fatalf("publish failure must not fail mint: %v", err)
	}
	if _, err := env.Engine.Transfer(env.Ctx, 1, alice, bob); err != nil {
		t.Fatal(err)
	}
	if pub.calls != 2 {
		t.Fatalf("expected 2 publishes, got %d", pub.calls)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{Registry: domain.RegistryToken})
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 2 || evts[0].Type != "token.transferred" || evts[1].Type != "token.minted" {
		t.Fatalf("unexpected events %+v", evts)
	}
}

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{repo.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", repo.ErrNotFound), http.StatusNotFound},
		{auth.UnauthorizedError{Caller: bob, Required: admin}, http.StatusForbidden},
		{auth.NotOwnerError{TokenID: 1, Caller: bob}, http.StatusForbidden},
		{engine.InvalidTransitionError{Entity: "challenge", ID: 1, From: "closed", To: "closed"}, http.StatusBadRequest},
		{fmt.Errorf("%w: x", engine.ErrInvalidArgument), http.StatusBadRequest},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := engine.StatusCode(c.err); got != c.want {
			t.Errorf("StatusCode(%v) = %d, want %d", c.err, got, c.want)
		}
	}
	r := engine.ResultOf(nil, auth.NotOwnerError{TokenID: 1})
	if r.Err != http.StatusForbidden {
		t.Fatalf("result code: %+v", r)
	}
}
