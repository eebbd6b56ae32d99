package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/pricewatch/internal/api/response"
	"github.com/kiranshivaraju/pricewatch/internal/apikey"
	"github.com/kiranshivaraju/pricewatch/internal/store"
	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

// Auth resolves bearer API keys and enforces scopes.
type Auth struct {
	keys store.KeyStore
}

func NewAuth(ks store.KeyStore) *Auth {
	return &Auth{keys: ks}
}

// Authenticate resolves the bearer key and stores its Principal in the request
// context. Unknown, malformed and revoked keys get 401.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}
		prefix, ok := apikey.Prefix(raw)
		if !ok {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key format", nil)
			return
		}

		candidates, err := a.keys.GetAPIKeyByPrefix(r.Context(), prefix)
		if err != nil {
			slog.Error("looking up api key", "key_prefix", prefix, "error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil)
			return
		}

		key := match(candidates, raw)
		if key == nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		go a.touch(key)

		ctx := WithPrincipal(r.Context(), &Principal{
			TenantID:  key.TenantID,
			KeyID:     key.ID,
			KeyPrefix: prefix,
			KeyName:   key.Name,
			Scopes:    key.Scopes,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects requests whose key lacks scope with 403.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, ok := PrincipalFrom(r.Context()); ok && p.HasScope(scope) {
				next.ServeHTTP(w, r)
				return
			}
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "API key lacks the "+scope+" scope", map[string]string{"scope": scope})
		})
	}
}

// touch records key use. It runs detached from the request.
func (a *Auth) touch(key *models.APIKey) {
	if err := a.keys.UpdateAPIKeyLastUsed(context.Background(), key.ID); err != nil {
		slog.Warn("updating api key last use", "key_id", key.ID, "error", err)
	}
}

func match(candidates []*models.APIKey, raw string) *models.APIKey {
	for _, k := range candidates {
		if apikey.Verify(k, raw) {
			return k
		}
	}
	return nil
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
