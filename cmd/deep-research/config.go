// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/analyze"
	"github.com/pdiddy/deep-research/internal/coordinator"
	"github.com/pdiddy/deep-research/internal/llm"
	"github.com/pdiddy/deep-research/internal/logging"
	"github.com/pdiddy/deep-research/internal/memory"
	"github.com/pdiddy/deep-research/internal/plan"
	"github.com/pdiddy/deep-research/internal/rank"
	"github.com/pdiddy/deep-research/internal/report"
	"github.com/pdiddy/deep-research/internal/retrieve"
	"github.com/pdiddy/deep-research/internal/secrets"
	"github.com/pdiddy/deep-research/pkg/types"
)

func newLogger() (*zap.Logger, error) {
	return logging.New(viper.GetBool("debug"))
}

// loadConfig merges the stock defaults, the config file, DEEP_RESEARCH_*
// environment variables, flags, and credentials.
func loadConfig(cmd *cobra.Command) (types.Config, error) {
	cfg := types.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("reading configuration: %w", err)
	}
	if cfg.Generation.Profiles == nil {
		cfg.Generation.Profiles = types.DefaultProfiles()
	}

	flags := cmd.Flags()
	if flags.Changed("memory-backend") {
		v, _ := flags.GetString("memory-backend")
		cfg.Memory.Backend = types.MemoryBackend(v)
	}
	if flags.Changed("memory-path") {
		cfg.Memory.Path, _ = flags.GetString("memory-path")
	}
	if flags.Changed("redis-addr") {
		cfg.Memory.RedisAddr, _ = flags.GetString("redis-addr")
	}

	fwFlag, _ := cmd.Flags().GetString("fireworks-api-key")
	jinaFlag, _ := cmd.Flags().GetString("jina-api-key")
	cfg.Generation.APIKey = resolveKey(secrets.FireworksAPIKey, fwFlag, cfg.Generation.APIKey)
	cfg.Ranker.APIKey = resolveKey(secrets.JinaAPIKey, jinaFlag, cfg.Ranker.APIKey)
	return cfg, nil
}

// resolveKey picks a credential: flag, then the well-known environment
// variable, then the config file value, then the secrets directory.
func resolveKey(key, flagValue, configured string) string {
	v, origin := loadedSecrets.Resolve(key, flagValue)
	switch origin {
	case secrets.OriginFlag, secrets.OriginEnv:
		return v
	}
	if configured != "" {
		return configured
	}
	return v
}

// pipeline is everything a research run needs.
type pipeline struct {
	coordinator *coordinator.Coordinator
	memory      *memory.Durable
	logger      *zap.Logger
}

func (p *pipeline) Close() {
	if err := p.memory.Close(); err != nil {
		p.logger.Warn("closing memory", zap.Error(err))
	}
	_ = p.logger.Sync()
}

// buildPipeline wires the stage clients, ranker, stages, and memory. It
// refuses to start without a completion credential.
func buildPipeline(ctx context.Context, cfg types.Config, logger *zap.Logger) (*pipeline, error) {
	if cfg.Generation.APIKey == "" {
		return nil, fmt.Errorf("%w: set --fireworks-api-key, FIREWORKS_API_KEY, or .secrets/%s",
			llm.ErrMissingCredential, secrets.FireworksAPIKey)
	}
	if cfg.Ranker.APIKey == "" {
		logger.Warn("no embedding API key; sources keep model order")
	}

	mem, err := openMemory(ctx, cfg.Memory, logger)
	if err != nil {
		return nil, err
	}

	clients := llm.NewStageClients(cfg.Generation, llm.WithLogger(logger))
	ranker := rank.New(cfg.Ranker, rank.WithLogger(logger))
	coord := coordinator.New(
		plan.New(clients.Planning, logger),
		retrieve.New(clients.Retrieval, ranker, cfg.Ranker.TopK, logger),
		analyze.New(clients.Analysis, logger),
		report.New(clients.Report, logger),
		mem,
		coordinator.WithLogger(logger),
	)
	return &pipeline{coordinator: coord, memory: mem, logger: logger}, nil
}

// openMemory opens the configured persister and restores the last snapshot.
// A snapshot that cannot be restored is logged and the store starts empty.
func openMemory(ctx context.Context, cfg types.MemoryConfig, logger *zap.Logger) (*memory.Durable, error) {
	p, err := memory.Open(cfg)
	if err != nil {
		return nil, err
	}
	mem := memory.NewDurable(memory.NewStore(), p, logger)
	if err := mem.Restore(ctx); err != nil {
		logger.Error("starting with empty memory", zap.Error(err))
	}
	return mem, nil
}
