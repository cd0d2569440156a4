package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// AuthConfig holds the shared secret reviewers' tokens are signed with.
type AuthConfig struct {
	JWTSecret string
	Logger    *zap.Logger
}

// Reviewer is the caller identified by a bearer token.
type Reviewer struct {
	Subject   string
	ExpiresAt time.Time
}

type reviewerKey struct{}

func reviewerFromContext(ctx context.Context) (Reviewer, bool) {
	r, ok := ctx.Value(reviewerKey{}).(Reviewer)
	return r, ok
}

type tokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func newTokenVerifier(secret string) (*tokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret not configured")
	}
	return &tokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

func (v *tokenVerifier) verify(raw string) (Reviewer, error) {
	var claims jwt.RegisteredClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return Reviewer{}, err
	}
	if claims.Subject == "" {
		return Reviewer{}, errors.New("subject claim required")
	}
	r := Reviewer{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		r.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return r, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", false
	}
	return token, true
}

// requireReviewer rejects requests under basePath without a valid token,
// apart from the health check and the OpenAPI document.
func requireReviewer(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	public := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "openapi.json"): true,
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	verifier, verr := newTokenVerifier(cfg.JWTSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			header := req.Header.Get("Authorization")
			if strings.TrimSpace(header) == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			token, ok := bearerToken(header)
			if !ok || verr != nil {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			reviewer, err := verifier.verify(token)
			if err != nil {
				logger.Debug("rejected bearer token", zap.String("path", req.URL.Path), zap.Error(err))
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), reviewerKey{}, reviewer)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
