package tokenmeta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"auctionscan/internal/model"
)

// Provider fetches descriptive token metadata from an external catalog.
// Metadata is enrichment only: callers treat a nil result as "no metadata"
// and never fail ingestion over it.
type Provider interface {
	Fetch(ctx context.Context, chainID uint64, token string) (*model.TokenMeta, error)
}

// HTTPProvider reads token metadata from a JSON catalog service.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPProvider(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Fetch looks up one token. A 404 is normal and returns (nil, nil).
func (p *HTTPProvider) Fetch(ctx context.Context, chainID uint64, token string) (*model.TokenMeta, error) {
	url := fmt.Sprintf("%s/tokens/%d/%s", p.baseURL, chainID, strings.ToLower(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token metadata %s: status %d", token, resp.StatusCode)
	}

	var meta model.TokenMeta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("token metadata %s: %w", token, err)
	}
	return &meta, nil
}

var _ Provider = (*HTTPProvider)(nil)
