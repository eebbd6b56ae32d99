package elasticity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

// --- helpers ---

var testCluster = models.Cluster{Categoria: "Poleras", Genero: "Mujer", Marca: "Acme", BandaPrecio: "media"}

func estimatorServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

// --- Estimate tests ---

func TestEstimate_ValidResponse(t *testing.T) {
	ts := estimatorServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/elasticity" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("categoria") != "Poleras" || q.Get("marca") != "Acme" || q.Get("banda_precio") != "media" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"value": -1.8, "confidence": "ALTA", "observations": 52})
	})

	el, err := NewHTTPClient(ts.URL+"/", "secret", 5*time.Second).Estimate(context.Background(), testCluster)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if el.Value != -1.8 {
		t.Errorf("expected value -1.8, got %v", el.Value)
	}
	if el.Confidence != models.ConfianzaAlta {
		t.Errorf("expected confidence alta, got %q", el.Confidence)
	}
	if el.Observations != 52 {
		t.Errorf("expected 52 observations, got %d", el.Observations)
	}
}

func TestEstimate_NoAuthHeaderWithoutKey(t *testing.T) {
	ts := estimatorServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("expected no authorization header")
		}
		json.NewEncoder(w).Encode(map[string]any{"value": -0.5, "confidence": "media"})
	})

	if _, err := NewHTTPClient(ts.URL, "", time.Second).Estimate(context.Background(), testCluster); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEstimate_UnknownConfidenceIsBaja(t *testing.T) {
	ts := estimatorServer(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"value": -1, "confidence": "very high"})
	})

	el, err := NewHTTPClient(ts.URL, "", time.Second).Estimate(context.Background(), testCluster)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if el.Confidence != models.ConfianzaBaja {
		t.Errorf("expected baja, got %q", el.Confidence)
	}
}

func TestEstimate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name:    "not estimated",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) },
			want:    ErrNoEstimate,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			want:    ErrEstimatorUnreachable,
		},
		{
			name:    "client error",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadRequest) },
			want:    ErrEstimatorBadResponse,
		},
		{
			name:    "malformed json",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("{value:")) },
			want:    ErrEstimatorBadResponse,
		},
		{
			name:    "missing value",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte(`{"confidence":"alta"}`)) },
			want:    ErrEstimatorBadResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := estimatorServer(t, tt.handler)
			_, err := NewHTTPClient(ts.URL, "", time.Second).Estimate(context.Background(), testCluster)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEstimate_Timeout(t *testing.T) {
	release := make(chan struct{})
	ts := estimatorServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := NewHTTPClient(ts.URL, "", 50*time.Millisecond).Estimate(context.Background(), testCluster)
	if !errors.Is(err, ErrEstimatorTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestEstimate_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewHTTPClient(url, "", time.Second).Estimate(context.Background(), testCluster)
	if !errors.Is(err, ErrEstimatorUnreachable) {
		t.Fatalf("expected unreachable, got %v", err)
	}
}
