// ABOUTME: Per-user chat preferences for draftroom-chat
// ABOUTME: Loads TOML prefs from XDG path with environment variable expansion

package main

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// Prefs holds per-user defaults that are not part of the platform config:
// which channel to open, whether reasoning is on, where exports land.
type Prefs struct {
	Session SessionPrefs `toml:"session"`
	Export  ExportPrefs  `toml:"export"`
}

type SessionPrefs struct {
	Project   string `toml:"project"`
	Channel   string `toml:"channel"`
	Reasoning bool   `toml:"reasoning"`
}

type ExportPrefs struct {
	Dir string `toml:"dir"`
}

// loadPrefs reads prefs from the given path, expanding environment
// variables. A missing file yields empty defaults, not an error.
func loadPrefs(path string) (*Prefs, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Prefs{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading prefs file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var prefs Prefs
	if _, err := toml.Decode(expanded, &prefs); err != nil {
		return nil, fmt.Errorf("parsing prefs: %w", err)
	}
	return &prefs, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}
