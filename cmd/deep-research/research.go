// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pdiddy/deep-research/internal/progress"
	"github.com/pdiddy/deep-research/internal/report"
	"github.com/pdiddy/deep-research/pkg/types"
)

var researchCmd = &cobra.Command{
	Use:   "research [query]",
	Short: "Research a question and print the report",
	Long: `Research plans sub-tasks for the query, gathers and analyzes evidence
for each in order, and prints the synthesized report. Progress is printed as
it happens.

Runs in the same session build on earlier findings: repeating a query in a
session runs the full pipeline again, with the completed tasks steering the
new plan toward angles not yet covered. Persist memory between
invocations with --memory-backend file, sqlite, or redis.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func runResearch(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("query required")
	}
	session, _ := cmd.Flags().GetString("session")
	pace, _ := cmd.Flags().GetDuration("pace")
	showPlan, _ := cmd.Flags().GetBool("show-plan")
	showSources, _ := cmd.Flags().GetBool("sources")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
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

	sink := progress.NewTextSink(os.Stdout)
	sink.Pace = pace

	run, err := p.coordinator.Research(ctx, session, query, sink)
	if err != nil {
		if len(run.Results) > 0 {
			fmt.Fprintf(os.Stderr, "Research stopped after %d of %d task(s).\n", len(run.Results), len(run.Plan.Tasks))
		}
		return err
	}

	if showPlan {
		fmt.Fprintln(os.Stdout)
		fmt.Fprint(os.Stdout, report.FormatPlan(run.Plan))
	}
	if showSources {
		printSources(run.Results)
	}
	fmt.Fprintln(os.Stdout, run.Timing)
	return nil
}

func printSources(results []types.TaskResult) {
	sources := types.CollectSources(results)
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(os.Stdout, "Sources:")
	for i, s := range sources {
		fmt.Fprintf(os.Stdout, "%d. %s\n", i+1, report.FormatCitation(s))
	}
	fmt.Fprintln(os.Stdout)
}

func init() {
	researchCmd.Flags().String("session", "cli", "session that groups runs in memory")
	researchCmd.Flags().Duration("pace", 0, "delay between streamed report chunks (e.g. 20ms)")
	researchCmd.Flags().Bool("show-plan", false, "print the full research plan after the report")
	researchCmd.Flags().Bool("sources", false, "print a numbered source list after the report")

	rootCmd.AddCommand(researchCmd)
}
