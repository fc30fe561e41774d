package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"ideaforge/internal/domain"
	"ideaforge/internal/engine"
	"ideaforge/internal/repo"
)

type listQuery struct {
	Limit  int    `query:"limit" default:"50"`
	Cursor string `query:"cursor" doc:"Return records with IDs after this one"`
}

func (q listQuery) filters() (repo.ListFilters, int, huma.StatusError) {
	limit := normalizeLimit(q.Limit)
	after, err := parseCursor(q.Cursor)
	if err != nil {
		return repo.ListFilters{}, 0, err
	}
	return repo.ListFilters{AfterID: after, Limit: limit + 1}, limit, nil
}

// page trims a limit+1 result set and reports the cursor for the next page.
func page[T any](items []T, limit int, id func(T) int64) ([]T, string) {
	if len(items) > limit {
		return items[:limit], strconv.FormatInt(id(items[limit-1]), 10)
	}
	return nonNilSlice(items), ""
}

func registerOracle(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-oracle",
		Method:      http.MethodGet,
		Path:        "/oracle",
		Summary:     "Current oracle principal",
	}, func(ctx context.Context, _ *struct{}) (*oracleOutput, error) {
		p, err := e.GetOracle(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &oracleOutput{Body: OracleResponse{Oracle: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-oracle",
		Method:      http.MethodPut,
		Path:        "/oracle",
		Summary:     "Rotate the oracle",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body SetOracleRequest `json:"body"`
	}) (*oracleOutput, error) {
		caller, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.SetOracle(ctx, caller, domain.Principal(strings.TrimSpace(input.Body.Oracle)))
		if err != nil {
			return nil, handleError(err)
		}
		return &oracleOutput{Body: OracleResponse{Oracle: p}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-evaluations",
		Method:      http.MethodGet,
		Path:        "/evaluations",
		Summary:     "List evaluations by idea",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		listQuery
	}) (*evaluationsOutput, error) {
		f, limit, qErr := input.filters()
		if qErr != nil {
			return nil, qErr
		}
		items, err := e.ListEvaluations(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		items, next := page(items, limit, func(ev domain.Evaluation) int64 { return ev.IdeaID })
		return &evaluationsOutput{Body: paginatedEvaluations{Items: items, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-evaluation",
		Method:      http.MethodGet,
		Path:        "/evaluations/{idea_id}",
		Summary:     "Get the evaluation of an idea",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IdeaID int64 `path:"idea_id"`
	}) (*evaluationOutput, error) {
		ev, err := e.GetEvaluation(ctx, input.IdeaID)
		if err != nil {
			return nil, handleError(err)
		}
		return &evaluationOutput{Body: ev}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-idea",
		Method:      http.MethodPut,
		Path:        "/evaluations/{idea_id}",
		Summary:     "Record or overwrite an idea evaluation",
		Description: "Only the current oracle may evaluate. A repeated evaluation replaces the previous score and feedback.",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		IdeaID int64               `path:"idea_id"`
		Body   EvaluateIdeaRequest `json:"body"`
	}) (*evaluationOutput, error) {
		caller, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ev, err := e.Evaluate(ctx, caller, input.IdeaID, input.Body.Score, input.Body.Feedback)
		if err != nil {
			return nil, handleError(err)
		}
		return &evaluationOutput{Body: ev}, nil
	})
}

func registerChallenges(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-challenges",
		Method:      http.MethodGet,
		Path:        "/challenges",
		Summary:     "List challenges",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		listQuery
		Status string `query:"status" enum:"open,closed"`
	}) (*challengesOutput, error) {
		f, limit, qErr := input.filters()
		if qErr != nil {
			return nil, qErr
		}
		f.Status = input.Status
		items, err := e.ListChallenges(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		items, next := page(items, limit, func(c domain.Challenge) int64 { return c.ID })
		return &challengesOutput{Body: paginatedChallenges{Items: items, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-challenge",
		Method:      http.MethodPost,
		Path:        "/challenges",
		Summary:     "Create an open challenge",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateChallengeRequest `json:"body"`
	}) (*challengeOutput, error) {
		caller, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateChallenge(ctx, engine.ChallengeCreateOptions{
			Creator:     caller,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Reward:      input.Body.Reward,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &challengeOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-challenge",
		Method:      http.MethodGet,
		Path:        "/challenges/{id}",
		Summary:     "Get challenge",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*challengeOutput, error) {
		c, err := e.GetChallenge(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &challengeOutput{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-challenge",
		Method:      http.MethodPost,
		Path:        "/challenges/{id}/close",
		Summary:     "Close an open challenge",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*challengeOutput, error) {
		caller, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CloseChallenge(ctx, caller, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &challengeOutput{Body: c}, nil
	})
}

func registerTokens(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tokens",
		Method:      http.MethodGet,
		Path:        "/tokens",
		Summary:     "List tokens",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		listQuery
		Owner string `query:"owner"`
	}) (*tokensOutput, error) {
		f, limit, qErr := input.filters()
		if qErr != nil {
			return nil, qErr
		}
		f.Owner = domain.Principal(strings.TrimSpace(input.Owner))
		items, err := e.ListTokens(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		items, next := page(items, limit, func(t domain.Token) int64 { return t.ID })
		return &tokensOutput{Body: paginatedTokens{Items: items, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mint-token",
		Method:      http.MethodPost,
		Path:        "/tokens",
		Summary:     "Mint a token to a recipient",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body MintTokenRequest `json:"body"`
	}) (*tokenOutput, error) {
		caller, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Mint(ctx, caller, domain.Principal(strings.TrimSpace(input.Body.Recipient)), input.Body.URI)
		if err != nil {
			return nil, handleError(err)
		}
		return &tokenOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "last-token-id",
		Method:      http.MethodGet,
		Path:        "/tokens/last-id",
		Summary:     "Last minted token ID",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body LastIDResponse `json:"body"`
	}, error) {
		id, err := e.LastTokenID(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LastIDResponse `json:"body"`
		}{Body: LastIDResponse{Registry: domain.RegistryToken, LastID: id}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-token",
		Method:      http.MethodGet,
		Path:        "/tokens/{id}",
		Summary:     "Get token",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*tokenOutput, error) {
		t, err := e.GetToken(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &tokenOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-token-owner",
		Method:      http.MethodGet,
		Path:        "/tokens/{id}/owner",
		Summary:     "Current owner of a token",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body OwnerResponse `json:"body"`
	}, error) {
		owner, err := e.GetOwner(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OwnerResponse `json:"body"`
		}{Body: OwnerResponse{TokenID: input.ID, Owner: owner}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-token-uri",
		Method:      http.MethodGet,
		Path:        "/tokens/{id}/uri",
		Summary:     "Metadata URI of a token",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body TokenURIResponse `json:"body"`
	}, error) {
		uri, err := e.GetTokenURI(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TokenURIResponse `json:"body"`
		}{Body: TokenURIResponse{TokenID: input.ID, URI: uri}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transfer-token",
		Method:      http.MethodPost,
		Path:        "/tokens/{id}/transfer",
		Summary:     "Transfer a token you own",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64                `path:"id"`
		Body TransferTokenRequest `json:"body"`
	}) (*tokenOutput, error) {
		caller, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.Transfer(ctx, input.ID, caller, domain.Principal(strings.TrimSpace(input.Body.Recipient)))
		if err != nil {
			return nil, handleError(err)
		}
		return &tokenOutput{Body: t}, nil
	})
}

func registerSubmissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-submissions",
		Method:      http.MethodGet,
		Path:        "/submissions",
		Summary:     "List submissions",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		listQuery
		ChallengeID int64  `query:"challenge_id"`
		Status      string `query:"status" enum:"pending,accepted,rejected"`
	}) (*submissionsOutput, error) {
		f, limit, qErr := input.filters()
		if qErr != nil {
			return nil, qErr
		}
		f.ChallengeID = input.ChallengeID
		f.Status = input.Status
		items, err := e.ListSubmissions(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		items, next := page(items, limit, func(s domain.Submission) int64 { return s.ID })
		return &submissionsOutput{Body: paginatedSubmissions{Items: items, NextCursor: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-solution",
		Method:      http.MethodPost,
		Path:        "/submissions",
		Summary:     "Submit a solution to a challenge",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body SubmitSolutionRequest `json:"body"`
	}) (*submissionOutput, error) {
		caller, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.SubmitSolution(ctx, caller, input.Body.ChallengeID, input.Body.Content)
		if err != nil {
			return nil, handleError(err)
		}
		return &submissionOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-submission",
		Method:      http.MethodGet,
		Path:        "/submissions/{id}",
		Summary:     "Get submission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*submissionOutput, error) {
		s, err := e.GetSubmission(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &submissionOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-submission",
		Method:      http.MethodPost,
		Path:        "/submissions/{id}/evaluate",
		Summary:     "Accept or reject a pending submission",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64                     `path:"id"`
		Body EvaluateSubmissionRequest `json:"body"`
	}) (*submissionOutput, error) {
		caller, authErr := principalFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		status, err := domain.ParseSubmissionStatus(input.Body.Status)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		s, err := e.EvaluateSubmission(ctx, caller, input.ID, status)
		if err != nil {
			return nil, handleError(err)
		}
		return &submissionOutput{Body: s}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal := strings.TrimSpace(input.Body.Principal)
		if principal == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "principal is required", nil)
		}
		token, err := SignDevToken(authCfg.JWTSecret, domain.Principal(principal), time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}
