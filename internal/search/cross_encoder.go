package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	therrors "github.com/nhdandz/ThuTucHanhChinh/internal/errors"
)

// CrossEncoder scores query-document pairs for relevance.
type CrossEncoder interface {
	// Score returns one relevance score per document, in input order.
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
}

// HTTPCrossEncoder talks to an external reranking service. The service
// accepts {"query": ..., "documents": [...]} and answers {"scores": [...]}.
type HTTPCrossEncoder struct {
	url    string
	client *http.Client
}

var _ CrossEncoder = (*HTTPCrossEncoder)(nil)

// NewHTTPCrossEncoder creates a client for the given scoring endpoint.
func NewHTTPCrossEncoder(url string) *HTTPCrossEncoder {
	return &HTTPCrossEncoder{
		url: url,
		client: &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     30 * time.Second,
		}},
	}
}

type crossEncoderRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type crossEncoderResponse struct {
	Scores []float64 `json:"scores"`
}

// Score returns one relevance score per document.
func (e *HTTPCrossEncoder) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return []float64{}, nil
	}

	body, err := json.Marshal(crossEncoderRequest{Query: query, Documents: documents})
	if err != nil {
		return nil, therrors.New(therrors.CodeInternal, "encode rerank request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, therrors.New(therrors.CodeInternal, "create rerank request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctxErr := therrors.FromContext(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, therrors.New(therrors.CodeRerankerFailed, "rerank request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, therrors.New(therrors.CodeRerankerFailed,
			fmt.Sprintf("rerank request returned status %d: %s", resp.StatusCode, string(detail)), nil)
	}

	var parsed crossEncoderResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, therrors.New(therrors.CodeRerankerFailed, "decode rerank response", err)
	}
	if len(parsed.Scores) != len(documents) {
		return nil, therrors.New(therrors.CodeRerankerFailed,
			fmt.Sprintf("rerank score count mismatch: want %d, got %d", len(documents), len(parsed.Scores)), nil)
	}
	return parsed.Scores, nil
}
