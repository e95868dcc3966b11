package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/loomkit/loom"
)

// expandPath expands ~ to home directory.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// loomNewSharedStateWithInput returns a fresh SharedState, optionally seeded
// with a JSON-decoded value under its "input" key.
func loomNewSharedStateWithInput(inputJSON string) *loom.SharedState {
	shared := loom.NewSharedState()
	if inputJSON == "" {
		return shared
	}

	var input any
	if err := json.Unmarshal([]byte(inputJSON), &input); err == nil {
		shared.Set("input", input)
	}

	return shared
}
