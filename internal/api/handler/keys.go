package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/pricewatch/internal/api/response"
	"github.com/kiranshivaraju/pricewatch/internal/apikey"
	"github.com/kiranshivaraju/pricewatch/internal/store"
	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

type createKeyRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

type createKeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	KeyPrefix string    `json:"keyPrefix"`
	Scopes    []string  `json:"scopes"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewCreateKeyHandler returns the handler for POST /api/v1/admin/keys. The raw
// key appears only in this response.
func NewCreateKeyHandler(ks store.KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(w, r)
		if !ok {
			return
		}

		var req createKeyRequest
		if !decodeBody(w, r, &req) {
			return
		}

		issued, err := apikey.Issue(r.Context(), ks, tenantID, req.Name, req.Scopes)
		switch {
		case errors.Is(err, apikey.ErrInvalidName):
			invalidFields(w, []string{"name"})
			return
		case errors.Is(err, apikey.ErrInvalidScope):
			invalidFields(w, []string{"scopes"})
			return
		case errors.Is(err, store.ErrDuplicateKey):
			response.Error(w, http.StatusConflict, "DUPLICATE_KEY_NAME",
				"An API key with this name already exists", nil)
			return
		case err != nil:
			writeError(w, r, err, "")
			return
		}

		response.Created(w, createKeyResponse{
			ID:        issued.Key.ID,
			Name:      issued.Key.Name,
			Key:       issued.Raw,
			KeyPrefix: issued.Key.KeyPrefix,
			Scopes:    issued.Key.Scopes,
			CreatedAt: issued.Key.CreatedAt,
		})
	}
}

// NewListKeysHandler returns the handler for GET /api/v1/admin/keys.
func NewListKeysHandler(ks store.KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(w, r)
		if !ok {
			return
		}
		keys, err := ks.ListAPIKeys(r.Context(), tenantID)
		if err != nil {
			writeError(w, r, err, "")
			return
		}
		if keys == nil {
			keys = []*models.APIKey{}
		}
		response.List(w, keys, len(keys))
	}
}

// NewRevokeKeyHandler returns the handler for DELETE /api/v1/admin/keys/{keyID}.
func NewRevokeKeyHandler(ks store.KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(w, r)
		if !ok {
			return
		}
		keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid key ID format", nil)
			return
		}

		if err := ks.RevokeAPIKey(r.Context(), keyID, tenantID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "API key not found", nil)
				return
			}
			writeError(w, r, err, "")
			return
		}
		response.NoContent(w)
	}
}
