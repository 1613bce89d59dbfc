// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/secrets"
	"github.com/pdiddy/deep-research/pkg/types"
)

func loadTestSecrets(t *testing.T, files map[string]string) {
	t.Helper()
	dir := t.TempDir()
	for name, v := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(v), 0o600))
	}
	s, err := secrets.Load(dir, nil)
	require.NoError(t, err)
	orig := loadedSecrets
	loadedSecrets = s
	t.Cleanup(func() { loadedSecrets = orig })
}

func TestResolveKey(t *testing.T) {
	loadTestSecrets(t, map[string]string{secrets.FireworksAPIKey: "file-key"})

	tests := []struct {
		name       string
		flag       string
		env        string
		configured string
		want       string
	}{
		{"flag first", "flag-key", "env-key", "cfg-key", "flag-key"},
		{"env over config", "", "env-key", "cfg-key", "env-key"},
		{"config over secrets file", "", "", "cfg-key", "cfg-key"},
		{"secrets file last", "", "", "", "file-key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FIREWORKS_API_KEY", tt.env)
			assert.Equal(t, tt.want, resolveKey(secrets.FireworksAPIKey, tt.flag, tt.configured))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	loadTestSecrets(t, map[string]string{secrets.JinaAPIKey: "jina-file"})
	t.Setenv("FIREWORKS_API_KEY", "")
	t.Setenv("JINA_API_KEY", "")
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("generation.timeout", "90s")
	viper.Set("ranker.top_k", 3)

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("fireworks-api-key", "", "")
	cmd.Flags().String("jina-api-key", "", "")
	cmd.Flags().String("memory-backend", "", "")
	cmd.Flags().String("memory-path", "", "")
	cmd.Flags().String("redis-addr", "", "")
	require.NoError(t, cmd.ParseFlags([]string{"--fireworks-api-key=fw-flag", "--memory-backend=sqlite"}))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 3, cfg.Ranker.TopK)
	assert.Equal(t, 3, cfg.Generation.MaxAttempts, "unset keys keep defaults")
	assert.Equal(t, "fw-flag", cfg.Generation.APIKey)
	assert.Equal(t, "jina-file", cfg.Ranker.APIKey)
	assert.Equal(t, types.MemorySQLite, cfg.Memory.Backend)
	assert.Equal(t, "deep-research-memory.db", cfg.Memory.Path)
	assert.Equal(t, types.DefaultProfiles(), cfg.Generation.Profiles)
}

func TestBuildPipelineRequiresCredential(t *testing.T) {
	cfg := types.DefaultConfig()
	_, err := buildPipeline(context.Background(), cfg, zaptest.NewLogger(t))
	require.ErrorIs(t, err, llm.ErrMissingCredential)
}

func TestBuildPipelineRestoresMemory(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.Generation.APIKey = "fw"
	cfg.Memory.Backend = types.MemoryFile
	cfg.Memory.Path = filepath.Join(t.TempDir(), "memory.json")
	require.NoError(t, os.WriteFile(cfg.Memory.Path,
		[]byte(`{"research_store": {"s1": {"q": {"query": "q", "report": "r"}}}, "task_store": {}}`), 0o600))

	p, err := buildPipeline(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer p.Close()

	rec, ok := p.memory.Get("s1", "q")
	require.True(t, ok)
	assert.Equal(t, "r", rec.Report)
}
