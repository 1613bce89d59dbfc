// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rank reorders candidate documents by embedding similarity to a query.
// Any failure degrades to the input order with a fixed score of 1.0.
package rank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/internal/logging"
	"github.com/pdiddy/deep-research/internal/metrics"
	"github.com/pdiddy/deep-research/pkg/types"
)

// DefaultTopK is the number of documents kept when neither the call nor the
// config sets one.
const DefaultTopK = 5

// Scored is one ranked document.
type Scored struct {
	Document string  `json:"document"`
	Score    float64 `json:"score"`
}

// Ranker scores documents against a query through an embeddings endpoint.
type Ranker struct {
	cfg    types.RankerConfig
	http   *http.Client
	logger *zap.Logger
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Ranker) { r.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Ranker) { r.logger = logging.OrNop(l) }
}

// New returns a ranker for cfg. With an empty API key every call degrades.
func New(cfg types.RankerConfig, opts ...Option) *Ranker {
	r := &Ranker{cfg: cfg, http: http.DefaultClient, logger: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	if cfg.APIKey == "" {
		r.logger.Warn("no ranking API key configured; sources keep model order")
	}
	return r
}

// Rerank returns at most topK documents ordered by descending dot-product
// similarity to query. Without a credential, with no documents, or on any
// ranking failure it returns the first topK documents in input order, each
// scored 1.0. A non-positive topK uses the configured default.
func (r *Ranker) Rerank(ctx context.Context, query string, docs []string, topK int) []Scored {
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	if r.cfg.APIKey == "" || len(docs) == 0 {
		metrics.RankerRequests.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return unranked(docs, topK)
	}

	vectors, err := r.embed(ctx, append([]string{query}, docs...))
	if err != nil {
		metrics.RankerRequests.WithLabelValues(metrics.OutcomeFallback).Inc()
		r.logger.Warn("ranking failed; keeping model order", zap.Error(err))
		return unranked(docs, topK)
	}

	q := vectors[0]
	scored := make([]Scored, len(docs))
	for i, doc := range docs {
		scored[i] = Scored{Document: doc, Score: dot(q, vectors[i+1])}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > topK {
		scored = scored[:topK]
	}

	metrics.RankerRequests.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return scored
}

func unranked(docs []string, topK int) []Scored {
	n := min(len(docs), topK)
	out := make([]Scored, n)
	for i := range n {
		out[i] = Scored{Document: docs[i], Score: 1.0}
	}
	return out
}

// dot returns the inner product of two vectors of equal length.
func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Task  string   `json:"task"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

var errShortResponse = errors.New("embedding response does not cover every input")

// embed returns one vector per input, in input order.
func (r *Ranker) embed(ctx context.Context, inputs []string) ([][]float64, error) {
	body, err := json.Marshal(embeddingRequest{Model: r.cfg.Model, Task: r.cfg.Task, Input: inputs})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)

	resp, err := httputil.DoWithRetry(ctx, r.http, req, httputil.RetryPolicy{MaxAttempts: 1, AttemptTimeout: r.cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &httputil.StatusError{StatusCode: resp.StatusCode}
	}

	var er embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("parsing embedding response: %w", err)
	}
	if len(er.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", errShortResponse, len(er.Data), len(inputs))
	}

	vectors := make([][]float64, len(er.Data))
	for i, d := range er.Data {
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty vector at %d", errShortResponse, i)
		}
		if i > 0 && len(d.Embedding) != len(vectors[0]) {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d",
				errShortResponse, i, len(d.Embedding), len(vectors[0]))
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
