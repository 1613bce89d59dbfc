// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm is the completion client every pipeline stage calls through.
// A Client binds one stage's model profile to the shared endpoint, credential,
// retry budget, and request pacing.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/internal/logging"
	"github.com/pdiddy/deep-research/internal/metrics"
	"github.com/pdiddy/deep-research/pkg/types"
)

// Generator is the single capability the pipeline stages need from a model.
// Implementations return a *ModelError of KindFatal on failure.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userMessage string, opts ...CallOption) (string, error)
}

// CallOption overrides a profile parameter for one call.
type CallOption func(*callParams)

type callParams struct {
	temperature float64
	maxTokens   int
}

// WithTemperature overrides the profile temperature for one call.
func WithTemperature(t float64) CallOption {
	return func(p *callParams) { p.temperature = t }
}

// WithMaxTokens overrides the profile token budget for one call.
func WithMaxTokens(n int) CallOption {
	return func(p *callParams) { p.maxTokens = n }
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l) }
}

// WithLimiter sets a limiter shared with other clients. Each call waits for
// a token before its first attempt.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// Client calls a completions endpoint with one stage's profile.
type Client struct {
	stage   types.Stage
	profile types.ModelProfile
	cfg     types.GenerationConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient returns a client for stage using cfg's endpoint and credential
// and the stage's profile.
func NewClient(cfg types.GenerationConfig, stage types.Stage, opts ...Option) *Client {
	c := &Client{
		stage:   stage,
		profile: cfg.Profile(stage),
		cfg:     cfg,
		http:    http.DefaultClient,
		logger:  zap.NewNop(),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With(zap.String("stage", string(stage)), zap.String("model", c.profile.Model))
	return c
}

// Profile returns the client's generation parameters.
func (c *Client) Profile() types.ModelProfile { return c.profile }

// StageClients holds one client per pipeline stage.
type StageClients struct {
	Planning  *Client
	Retrieval *Client
	Analysis  *Client
	Report    *Client
}

// NewStageClients builds a client for every stage. When cfg sets a request
// rate, all four share one limiter.
func NewStageClients(cfg types.GenerationConfig, opts ...Option) StageClients {
	if cfg.RequestsPerSecond > 0 {
		shared := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
		opts = append([]Option{WithLimiter(shared)}, opts...)
	}
	return StageClients{
		Planning:  NewClient(cfg, types.StagePlanning, opts...),
		Retrieval: NewClient(cfg, types.StageRetrieval, opts...),
		Analysis:  NewClient(cfg, types.StageAnalysis, opts...),
		Report:    NewClient(cfg, types.StageReport, opts...),
	}
}

type completionRequest struct {
	Model            string  `json:"model"`
	Prompt           string  `json:"prompt"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	TopP             float64 `json:"top_p"`
	PresencePenalty  float64 `json:"presence_penalty"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
}

type completionResponse struct {
	Choices []struct {
		Text string `json:"text"`
	} `json:"choices"`
}

// maxErrorBody caps how much of an error response is kept in a StatusError.
const maxErrorBody = 512

// Generate combines systemPrompt and userMessage into one prompt and
// returns the completion text. HTTP 429 and transport failures are retried
// with exponential backoff; every other failure is returned at once as a
// fatal *ModelError.
func (c *Client) Generate(ctx context.Context, systemPrompt, userMessage string, opts ...CallOption) (string, error) {
	model := c.profile.Model
	if c.cfg.APIKey == "" {
		return "", c.fail(&ModelError{Kind: KindFatal, Model: model, Err: ErrMissingCredential})
	}

	params := callParams{temperature: c.profile.Temperature, maxTokens: c.profile.MaxTokens}
	for _, o := range opts {
		o(&params)
	}

	body, err := json.Marshal(completionRequest{
		Model:            model,
		Prompt:           systemPrompt + "\n\n" + userMessage,
		Temperature:      params.temperature,
		MaxTokens:        params.maxTokens,
		TopP:             c.profile.TopP,
		PresencePenalty:  c.profile.PresencePenalty,
		FrequencyPenalty: c.profile.FrequencyPenalty,
	})
	if err != nil {
		return "", c.fail(&ModelError{Kind: KindFatal, Model: model, Err: fmt.Errorf("encoding request: %w", err)})
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", c.fail(&ModelError{Kind: KindFatal, Model: model, Err: err})
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", c.fail(&ModelError{Kind: KindFatal, Model: model, Err: fmt.Errorf("creating request: %w", err)})
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	attempts := 1
	policy := httputil.RetryPolicy{
		MaxAttempts:    c.cfg.MaxAttempts,
		BaseDelay:      c.cfg.RetryBaseDelay,
		AttemptTimeout: c.cfg.Timeout,
		OnRetry: func(attempt int, wait time.Duration, cause error) {
			attempts = attempt + 1
			reason := "rate_limited"
			if cause != nil {
				reason = "transport"
			} else {
				cause = httputil.ErrRateLimited
			}
			metrics.ModelRetries.WithLabelValues(model, reason).Inc()
			c.logger.Debug("retrying completion",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(&ModelError{Kind: KindTransient, Model: model, Attempts: attempt, Err: cause}))
		},
	}

	c.logger.Debug("completion request", zap.Int("prompt_bytes", len(systemPrompt)+len(userMessage)+2))
	start := time.Now()
	resp, err := httputil.DoWithRetry(ctx, c.http, req, policy)
	metrics.ModelLatency.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if err != nil {
		var re *httputil.RetryError
		if errors.As(err, &re) {
			return "", c.fail(&ModelError{Kind: KindFatal, Model: model, Attempts: re.Attempts, Err: re.Err})
		}
		return "", c.fail(&ModelError{Kind: KindFatal, Model: model, Attempts: attempts, Err: err})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", c.fail(&ModelError{Kind: KindFatal, Model: model, Attempts: attempts, Err: err})
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(data)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return "", c.fail(&ModelError{
			Kind:       KindFatal,
			Model:      model,
			StatusCode: resp.StatusCode,
			Attempts:   attempts,
			Err:        &httputil.StatusError{StatusCode: resp.StatusCode, Body: msg},
		})
	}

	var cr completionResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return "", c.fail(&ModelError{Kind: KindFatal, Model: model, Attempts: attempts, Err: fmt.Errorf("parsing completion response: %w", err)})
	}
	if len(cr.Choices) == 0 {
		return "", c.fail(&ModelError{Kind: KindFatal, Model: model, Attempts: attempts, Err: errors.New("completion response has no choices")})
	}

	metrics.ModelRequests.WithLabelValues(model, metrics.OutcomeSuccess).Inc()
	c.logger.Debug("completion received",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("attempts", attempts),
		zap.Int("response_bytes", len(cr.Choices[0].Text)))
	return cr.Choices[0].Text, nil
}

func (c *Client) fail(err *ModelError) error {
	metrics.ModelRequests.WithLabelValues(err.Model, metrics.OutcomeError).Inc()
	c.logger.Warn("completion failed", zap.Error(err))
	return err
}
