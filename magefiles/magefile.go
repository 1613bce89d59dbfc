//go:build mage

// Package main contains Mage build targets for deep-research developer tooling.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir     = "bin"
	binName    = "deep-research"
	cmdPkg     = "./cmd/deep-research"
	secretsDir = ".secrets"
	configFile = "deep-research.yaml"
	coverFile  = "coverage.out"
)

// secretFiles are the credential files the CLI reads from .secrets/.
var secretFiles = []string{"fireworks-api-key", "jina-api-key"}

// configTemplate is written by Init when no config file exists.
const configTemplate = `# deep-research configuration. Environment variables DEEP_RESEARCH_<SECTION>_<KEY>
# override these values; credentials belong in .secrets/ or FIREWORKS_API_KEY / JINA_API_KEY.
generation:
  timeout: 60s
  max_attempts: 3
  retry_base_delay: 2s
ranker:
  top_k: 5
memory:
  backend: sqlite
  path: deep-research-memory.db
server:
  addr: 0.0.0.0:8000
`

// Init creates the secrets directory with empty credential files and a
// starter config file. Existing files are left alone.
func Init() error {
	if err := os.MkdirAll(secretsDir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", secretsDir, err)
	}
	for _, name := range secretFiles {
		path := filepath.Join(secretsDir, name)
		if err := writeIfMissing(path, "", 0o600); err != nil {
			return err
		}
		fmt.Println("  ", path)
	}
	if err := writeIfMissing(configFile, configTemplate, 0o644); err != nil {
		return err
	}
	fmt.Println("  ", configFile)
	fmt.Println("Project initialized. Put your API keys in", secretsDir)
	return nil
}

func writeIfMissing(path, content string, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || version == "" {
		version = "dev"
	}
	if err := sh.RunV("go", "build", "-ldflags", "-X main.version="+version, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s (%s)\n", out, version)
	return nil
}

// Vet runs go vet over every package.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Test runs the test suite with the race detector.
func Test() error {
	mg.Deps(Vet)
	return sh.RunV("go", "test", "-race", "./...")
}

// Cover runs the tests with a coverage profile and prints the per-function summary.
func Cover() error {
	if err := sh.RunV("go", "test", "-coverprofile="+coverFile, "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func="+coverFile)
}

// Serve builds the binary and starts the HTTP host.
func Serve() error {
	mg.Deps(Build)
	return sh.RunV(filepath.Join(binDir, binName), "serve")
}

// Clean removes build and coverage artifacts.
func Clean() error {
	for _, p := range []string{binDir, coverFile} {
		if err := sh.Rm(p); err != nil {
			return err
		}
	}
	return nil
}
