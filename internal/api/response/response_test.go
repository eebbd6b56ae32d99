package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/pricewatch/internal/api/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestSuccessEnvelopes(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
	}{
		{"ok", func(w http.ResponseWriter) { response.JSON(w, map[string]string{"jobId": "j1"}) }, http.StatusOK},
		{"created", func(w http.ResponseWriter) { response.Created(w, map[string]string{"jobId": "j1"}) }, http.StatusCreated},
		{"accepted", func(w http.ResponseWriter) { response.Accepted(w, map[string]string{"jobId": "j1"}) }, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			body := decode(t, w)
			assert.Equal(t, "j1", body["data"].(map[string]any)["jobId"])
			assert.NotContains(t, body, "error")
			assert.NotContains(t, body, "meta")
		})
	}
}

func TestList(t *testing.T) {
	w := httptest.NewRecorder()
	response.List(w, []map[string]string{{"id": "1"}, {"id": "2"}}, 2)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["data"].([]any), 2)
	assert.Equal(t, 2.0, body["meta"].(map[string]any)["total"])
}

func TestList_Empty(t *testing.T) {
	w := httptest.NewRecorder()
	response.List(w, []string{}, 0)

	assert.JSONEq(t, `{"data":[],"meta":{"total":0}}`, w.Body.String())
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusConflict, "CANNOT_CANCEL", "current status is completed",
		map[string]string{"status": "completed"})

	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.NotContains(t, body, "data")

	errObj := body["error"].(map[string]any)
	assert.Equal(t, "CANNOT_CANCEL", errObj["code"])
	assert.Equal(t, "current status is completed", errObj["message"])
	assert.Equal(t, "completed", errObj["details"].(map[string]any)["status"])
}

func TestError_NoDetails(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)

	assert.JSONEq(t, `{"error":{"code":"NOT_FOUND","message":"Job not found"}}`, w.Body.String())
}

func TestInvalidFields(t *testing.T) {
	w := httptest.NewRecorder()
	response.InvalidFields(w, "Invalid request parameters", []string{"desde", "hasta"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "INVALID_REQUEST", errObj["code"])
	assert.Equal(t, []any{"desde", "hasta"}, errObj["details"].(map[string]any)["fields"])
}

func TestNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	response.NoContent(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
