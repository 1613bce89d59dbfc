// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/deep-research/internal/memory"
	"github.com/pdiddy/deep-research/pkg/types"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and manage persisted session memory",
	Long: `Memory operates on the store held by the configured backend
(--memory-backend file, sqlite, or redis). The in-process backend keeps
nothing between invocations.`,
}

// --- list subcommand ---

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions and the queries researched in each",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMemory(cmd, func(ctx context.Context, mem *memory.Durable) error {
			sessions := mem.Sessions()
			if len(sessions) == 0 {
				fmt.Println("No stored research.")
				return nil
			}
			for _, s := range sessions {
				fmt.Printf("%s\n", s)
				for _, q := range mem.Queries(s) {
					fmt.Printf("  - %s\n", q)
				}
			}
			return nil
		})
	},
}

// --- export subcommand ---

var memoryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the store to JSON or YAML",
	Long: `Export writes the full store, research records and task results, to
stdout or to --out. JSON output can be re-imported with "memory import".`,
	RunE: runMemoryExport,
}

func runMemoryExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	out, _ := cmd.Flags().GetString("out")

	return withMemory(cmd, func(ctx context.Context, mem *memory.Durable) error {
		var w io.Writer = os.Stdout
		if out != "" {
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("creating %s: %w", out, err)
			}
			defer f.Close()
			w = f
		}

		switch format {
		case "json", "":
			if err := mem.ExportJSON(w); err != nil {
				return err
			}
		case "yaml":
			if err := mem.ExportYAML(w); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported format %q: use json or yaml", format)
		}
		if out != "" {
			fmt.Fprintf(os.Stderr, "Exported %d record(s) to %s\n", mem.Len(), out)
		}
		return nil
	})
}

// --- import subcommand ---

var memoryImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the store with a JSON export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		return withMemory(cmd, func(ctx context.Context, mem *memory.Durable) error {
			if err := mem.Deserialize(data); err != nil {
				return fmt.Errorf("importing %s: %w", args[0], err)
			}
			if err := mem.Flush(ctx); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Imported %d record(s)\n", mem.Len())
			return nil
		})
	},
}

// --- clear subcommand ---

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete everything stored for a session",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _ := cmd.Flags().GetString("session")
		if session == "" {
			return fmt.Errorf("--session required")
		}
		return withMemory(cmd, func(ctx context.Context, mem *memory.Durable) error {
			mem.Clear(session)
			fmt.Fprintf(os.Stderr, "Cleared session %s\n", session)
			return nil
		})
	},
}

// withMemory opens the configured store, restores it, and runs fn.
func withMemory(cmd *cobra.Command, fn func(context.Context, *memory.Durable) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Memory.Backend == types.MemoryInProcess || cfg.Memory.Backend == "" {
		fmt.Fprintln(os.Stderr, "warning: in-process memory backend; nothing is persisted between invocations")
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	p, err := memory.Open(cfg.Memory)
	if err != nil {
		return err
	}
	mem := memory.NewDurable(memory.NewStore(), p, logger)
	defer mem.Close()
	if err := mem.Restore(ctx); err != nil {
		return err
	}
	return fn(ctx, mem)
}

func init() {
	memoryExportCmd.Flags().String("format", "json", "export format: json or yaml")
	memoryExportCmd.Flags().String("out", "", "output file (default stdout)")
	memoryClearCmd.Flags().String("session", "", "session to clear")

	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memoryExportCmd)
	memoryCmd.AddCommand(memoryImportCmd)
	memoryCmd.AddCommand(memoryClearCmd)

	rootCmd.AddCommand(memoryCmd)
}
