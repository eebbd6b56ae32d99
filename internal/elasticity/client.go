package elasticity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/pricewatch/pkg/models"
)

// HTTPClient implements Estimator against a remote estimation service.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a new estimator HTTP client.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Estimate(ctx context.Context, cluster models.Cluster) (models.Elasticity, error) {
	params := url.Values{
		"categoria":    {cluster.Categoria},
		"genero":       {cluster.Genero},
		"marca":        {cluster.Marca},
		"banda_precio": {cluster.BandaPrecio},
	}
	u := fmt.Sprintf("%s/v1/elasticity?%s", c.baseURL, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.Elasticity{}, fmt.Errorf("building request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return models.Elasticity{}, classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.Elasticity{}, ErrNoEstimate
	case resp.StatusCode >= http.StatusInternalServerError:
		return models.Elasticity{}, fmt.Errorf("%w: status %d", ErrEstimatorUnreachable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return models.Elasticity{}, fmt.Errorf("%w: status %d", ErrEstimatorBadResponse, resp.StatusCode)
	}

	var body estimateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.Elasticity{}, fmt.Errorf("%w: decoding: %v", ErrEstimatorBadResponse, err)
	}
	if body.Value == nil {
		return models.Elasticity{}, fmt.Errorf("%w: missing value", ErrEstimatorBadResponse)
	}

	return models.Elasticity{
		Value:        *body.Value,
		Confidence:   normalizeConfidence(body.Confidence),
		Observations: body.Observations,
	}, nil
}

// normalizeConfidence maps unknown labels to the lowest level.
func normalizeConfidence(c string) string {
	switch strings.ToLower(strings.TrimSpace(c)) {
	case models.ConfianzaAlta:
		return models.ConfianzaAlta
	case models.ConfianzaMedia:
		return models.ConfianzaMedia
	default:
		return models.ConfianzaBaja
	}
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrEstimatorTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrEstimatorTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrEstimatorUnreachable, err)
}

type estimateResponse struct {
	Value        *float64 `json:"value"`
	Confidence   string   `json:"confidence"`
	Observations int      `json:"observations"`
}

// Compile-time check that HTTPClient implements Estimator.
var _ Estimator = (*HTTPClient)(nil)
