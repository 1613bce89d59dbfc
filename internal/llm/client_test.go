// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

func testConfig(endpoint string) types.GenerationConfig {
	cfg := types.DefaultConfig().Generation
	cfg.Endpoint = endpoint
	cfg.APIKey = "fw-test"
	cfg.RetryBaseDelay = time.Millisecond
	cfg.Timeout = 5 * time.Second
	return cfg
}

func completionHandler(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"text": text}},
		})
	}
}

func TestGenerate_RequestShape(t *testing.T) {
	var got completionRequest
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		completionHandler("hello")(w, r)
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL), types.StageRetrieval, WithHTTPClient(ts.Client()))
	text, err := c.Generate(context.Background(), "SYSTEM", "USER")
	require.NoError(t, err)

	assert.Equal(t, "hello", text)
	assert.Equal(t, "Bearer fw-test", auth)
	assert.Equal(t, "SYSTEM\n\nUSER", got.Prompt)
	assert.Equal(t, "accounts/fireworks/models/llama-v3p1-8b-instruct", got.Model)
	assert.Equal(t, 0.1, got.Temperature)
	assert.Equal(t, 2048, got.MaxTokens)
	assert.Equal(t, 0.9, got.TopP)
	assert.Zero(t, got.PresencePenalty)
	assert.Zero(t, got.FrequencyPenalty)
}

func TestGenerate_CallOptionsOverrideProfile(t *testing.T) {
	var got completionRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		completionHandler("x")(w, r)
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL), types.StagePlanning, WithHTTPClient(ts.Client()))
	_, err := c.Generate(context.Background(), "s", "u", WithTemperature(0.7), WithMaxTokens(99))
	require.NoError(t, err)

	assert.Equal(t, 0.7, got.Temperature)
	assert.Equal(t, 99, got.MaxTokens)
	assert.Equal(t, 4096, c.Profile().MaxTokens, "profile is unchanged")
}

func TestGenerate_RetriesRateLimit(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		completionHandler("after retries")(w, r)
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL), types.StageAnalysis, WithHTTPClient(ts.Client()))
	text, err := c.Generate(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "after retries", text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGenerate_ExhaustedBudgetIsFatal(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := NewClient(testConfig(ts.URL), types.StageReport, WithHTTPClient(ts.Client()))
	_, err := c.Generate(context.Background(), "s", "u")
	require.Error(t, err)

	var me *ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, KindFatal, me.Kind)
	assert.Equal(t, 3, me.Attempts)
	assert.True(t, IsFatal(err))
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGenerate_NonRetryableStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"bad request", http.StatusBadRequest},
		{"unauthorized", http.StatusUnauthorized},
		{"server error", http.StatusInternalServerError},
		{"bad gateway", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				atomic.AddInt32(&calls, 1)
				http.Error(w, "nope", tt.status)
			}))
			defer ts.Close()

			c := NewClient(testConfig(ts.URL), types.StagePlanning, WithHTTPClient(ts.Client()))
			_, err := c.Generate(context.Background(), "s", "u")

			var me *ModelError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, KindFatal, me.Kind)
			assert.Equal(t, tt.status, me.StatusCode)

			var se *httputil.StatusError
			require.ErrorAs(t, err, &se)
			assert.Contains(t, se.Body, "nope")
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "no retry for non-429 status")
		})
	}
}

func TestGenerate_MalformedEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"no choices", `{"choices":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			c := NewClient(testConfig(ts.URL), types.StagePlanning, WithHTTPClient(ts.Client()))
			_, err := c.Generate(context.Background(), "s", "u")
			assert.True(t, IsFatal(err))
			assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		})
	}
}

func TestGenerate_MissingCredential(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.APIKey = ""

	_, err := NewClient(cfg, types.StagePlanning).Generate(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.True(t, IsFatal(err))
}

func TestGenerate_AttemptTimeoutRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		completionHandler("late")(w, r)
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.Timeout = 50 * time.Millisecond

	text, err := NewClient(cfg, types.StagePlanning, WithHTTPClient(ts.Client())).Generate(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "late", text)
}

func TestNewStageClients(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.RequestsPerSecond = 5

	sc := NewStageClients(cfg)
	assert.Equal(t, 4096, sc.Planning.Profile().MaxTokens)
	assert.Equal(t, 2048, sc.Retrieval.Profile().MaxTokens)
	assert.Equal(t, 0.3, sc.Analysis.Profile().Temperature)
	assert.Equal(t, 8192, sc.Report.Profile().MaxTokens)
	require.NotNil(t, sc.Planning.limiter)
	assert.Same(t, sc.Planning.limiter, sc.Report.limiter)
}

func TestModelErrorString(t *testing.T) {
	err := &ModelError{Kind: KindFatal, Model: "m", Attempts: 3, Err: httputil.ErrRateLimited}
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, "transient", KindTransient.String())
	assert.False(t, IsFatal(nil))
}
