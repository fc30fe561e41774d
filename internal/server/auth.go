package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"ideaforge/internal/domain"
	"ideaforge/internal/repo"
)

type AuthConfig struct {
	JWTSecret            string
	AllowPrincipalHeader bool
	Logger               *log.Logger
}

// Caller is the authenticated principal attached to a request.
type Caller struct {
	Principal domain.Principal
	Source    string
}

type callerKey struct{}

func (c AuthConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func withCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func callerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

func principalFromContext(ctx context.Context) (domain.Principal, huma.StatusError) {
	if c, ok := callerFromContext(ctx); ok && c.Principal != "" {
		return c.Principal, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func authenticateJWT(token string, secret string) (Caller, error) {
	if strings.TrimSpace(secret) == "" {
		return Caller{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Caller{}, err
	}
	if !parsed.Valid {
		return Caller{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Caller{}, errors.New("subject claim required")
	}
	return Caller{Principal: domain.Principal(claims.Subject), Source: "jwt"}, nil
}

// SignDevToken mints a short-lived HS256 token whose subject is the principal.
func SignDevToken(secret string, principal domain.Principal, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   principal.String(),
		Issuer:    "ideaforge-dev",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func authenticateAPIKey(ctx context.Context, r repo.Repo, key string) (Caller, error) {
	if strings.TrimSpace(key) == "" {
		return Caller{}, errors.New("api key required")
	}
	apiKey, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if err != nil {
		return Caller{}, err
	}
	if apiKey.Principal == "" {
		return Caller{}, errors.New("api key missing principal")
	}
	return Caller{Principal: apiKey.Principal, Source: "api_key"}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo) func(http.Handler) http.Handler {
	public := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
		path.Join(basePath, "openapi.json"):   true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))
			principalHeader := strings.TrimSpace(req.Header.Get("X-Principal"))

			var caller Caller
			var err error
			switch {
			case authz != "":
				token, ok := bearerToken(authz)
				if !ok {
					err = errors.New("malformed authorization header")
					break
				}
				caller, err = authenticateJWT(token, cfg.JWTSecret)
			case apiKeyHeader != "":
				caller, err = authenticateAPIKey(req.Context(), r, apiKeyHeader)
			case principalHeader != "" && cfg.AllowPrincipalHeader:
				cfg.logger().Printf("[WARN] trusting unauthenticated X-Principal header (principal=%s)", principalHeader)
				caller = Caller{Principal: domain.Principal(principalHeader), Source: "header"}
			default:
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			if err != nil {
				cfg.logger().Printf("[WARN] rejected credentials for %s %s: %v", req.Method, req.URL.Path, err)
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withCaller(req.Context(), caller)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
