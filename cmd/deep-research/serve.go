// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve research over HTTP with streamed progress",
	Long: `Serve hosts the pipeline over HTTP. POST /v1/research streams a run's
progress as Server-Sent Events. Stored research is readable under
/v1/sessions/{session}/, and Prometheus metrics are on /metrics.

Memory is restored from the configured backend at startup and saved after
each completed run and again on shutdown.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	srv := server.New(p.coordinator, p.memory, logger)
	serveErr := srv.Run(ctx, cfg.Server)

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := p.memory.Flush(flushCtx); err != nil {
		logger.Error("final memory save failed", zap.Error(err))
	}
	return serveErr
}

func init() {
	serveCmd.Flags().String("addr", "0.0.0.0:8000", "listen address")

	rootCmd.AddCommand(serveCmd)
}
