package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-yaml"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00ff9f"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffb454"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681"))
)

// manifest describes an assemble run: the inputs in order plus output
// options. Flags given on the command line override manifest values.
type manifest struct {
	Inputs     []string `json:"inputs" yaml:"inputs"`
	Output     string   `json:"output" yaml:"output"`
	Enhance    bool     `json:"enhance" yaml:"enhance"`
	SampleRate int      `json:"sample_rate" yaml:"sample_rate"`
	Channels   int      `json:"channels" yaml:"channels"`
	BitDepth   int      `json:"bit_depth" yaml:"bit_depth"`
	Resampler  string   `json:"resampler" yaml:"resampler"`
	MinSeconds float64  `json:"min_seconds" yaml:"min_seconds"`
}

// loadManifest reads a JSON or YAML manifest. Relative paths are
// resolved against the manifest directory.
func loadManifest(path string) (manifest, error) {
	var m manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &m); err != nil {
			return m, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return m, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}
	base := filepath.Dir(path)
	for i, in := range m.Inputs {
		if !filepath.IsAbs(in) {
			m.Inputs[i] = filepath.Join(base, in)
		}
	}
	if m.Output != "" && !filepath.IsAbs(m.Output) {
		m.Output = filepath.Join(base, m.Output)
	}
	return m, nil
}

// saveToFile writes data, creating the parent directory when needed.
func saveToFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func formatDuration(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.2fs", seconds)
	}
	mins := int(seconds / 60)
	secs := int(seconds) % 60
	return fmt.Sprintf("%dm%ds", mins, secs)
}

func formatBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
