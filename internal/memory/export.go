// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"
)

// ExportJSON writes the store to w as indented JSON in the Serialize layout.
func (s *Store) ExportJSON(w io.Writer) error {
	return s.withSnapshot(func(snap snapshot) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
		return nil
	})
}

// ExportYAML writes the store to w as YAML in the Serialize layout.
func (s *Store) ExportYAML(w io.Writer) error {
	return s.withSnapshot(func(snap snapshot) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encoding YAML: %w", err)
		}
		return enc.Close()
	})
}
