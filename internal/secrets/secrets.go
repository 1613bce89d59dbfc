// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets resolves API credentials for the completion and embedding
// endpoints. A credential comes from, in order of precedence, an explicit
// flag value, an environment variable, or a file in the secrets directory
// whose name is the key and whose trimmed contents are the value.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/logging"
)

// Key names, used both as secrets file names and for lookup.
const (
	FireworksAPIKey = "fireworks-api-key"
	JinaAPIKey      = "jina-api-key"
)

// EnvVars maps each key to the environment variable that supplies it.
var EnvVars = map[string]string{
	FireworksAPIKey: "FIREWORKS_API_KEY",
	JinaAPIKey:      "JINA_API_KEY",
}

// Origin records where a resolved credential came from.
type Origin string

const (
	OriginNone Origin = ""
	OriginFlag Origin = "flag"
	OriginEnv  Origin = "env"
	OriginFile Origin = "file"
)

// Dir is a loaded secrets directory.
type Dir struct {
	path   string
	values map[string]string
}

// Load reads every regular, non-hidden file in dir. A missing directory is
// not an error and yields an empty Dir. Unreadable files are logged and
// skipped; empty files are ignored.
func Load(dir string, logger *zap.Logger) (*Dir, error) {
	logger = logging.OrNop(logger)
	d := &Dir{path: dir, values: map[string]string{}}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("skipping unreadable secret", zap.String("name", name), zap.Error(err))
			continue
		}
		if v := strings.TrimSpace(string(data)); v != "" {
			d.values[name] = v
		}
	}
	return d, nil
}

// Value returns the file-backed value for key.
func (d *Dir) Value(key string) (string, bool) {
	if d == nil {
		return "", false
	}
	v, ok := d.values[key]
	return v, ok
}

// Len returns the number of loaded secrets.
func (d *Dir) Len() int {
	if d == nil {
		return 0
	}
	return len(d.values)
}

// Resolve returns the credential for key. flagValue wins when non-empty,
// then the key's environment variable, then the secrets file.
func (d *Dir) Resolve(key, flagValue string) (string, Origin) {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v, OriginFlag
	}
	if env, ok := EnvVars[key]; ok {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v, OriginEnv
		}
	}
	if v, ok := d.Value(key); ok {
		return v, OriginFile
	}
	return "", OriginNone
}
