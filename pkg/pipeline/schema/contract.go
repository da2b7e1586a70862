package schema

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Effort is the qualitative reasoning effort passed through to the endpoint.
type Effort string

const (
	EffortLow    Effort = "low"
	EffortMedium Effort = "medium"
	EffortHigh   Effort = "high"
)

// ParseEffort normalizes raw and rejects values outside low/medium/high.
// An empty value selects medium.
func ParseEffort(raw string) (Effort, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	switch Effort(s) {
	case "":
		return EffortMedium, nil
	case EffortLow, EffortMedium, EffortHigh:
		return Effort(s), nil
	default:
		return "", fmt.Errorf("invalid reasoning effort %q (want low, medium or high)", raw)
	}
}

// DocumentStatus is the ingestion outcome recorded for one source document.
type DocumentStatus string

const (
	DocumentOK     DocumentStatus = "ok"
	DocumentFailed DocumentStatus = "failed"
)

// Document is the manifest entry for one discovered source document.
type Document struct {
	Name        string         `yaml:"name"`
	Stem        string         `yaml:"stem"`
	InterimPath string         `yaml:"interim_path,omitempty"`
	Characters  int            `yaml:"characters"`
	Status      DocumentStatus `yaml:"status"`
	Error       string         `yaml:"error,omitempty"`
}

// Invocation summarizes the reasoning call.
type Invocation struct {
	Outcome   string `yaml:"outcome"`
	Attempts  int    `yaml:"attempts"`
	Remaining int    `yaml:"remaining_budget"`
	Duration  string `yaml:"duration,omitempty"`
	Error     string `yaml:"error,omitempty"`
}

// Manifest is the audit record written next to the interim artifacts.
type Manifest struct {
	Version    int         `yaml:"version"`
	RunID      string      `yaml:"run_id"`
	StartedAt  time.Time   `yaml:"started_at"`
	Provider   string      `yaml:"provider"`
	Model      string      `yaml:"model"`
	Effort     Effort      `yaml:"effort"`
	Documents  []Document  `yaml:"documents"`
	Invocation *Invocation `yaml:"invocation,omitempty"`
	OutputPath string      `yaml:"output_path,omitempty"`
}

const ManifestVersion = 1

// Ingested counts documents that produced text.
func (m Manifest) Ingested() int {
	n := 0
	for _, d := range m.Documents {
		if d.Status == DocumentOK {
			n++
		}
	}
	return n
}

// MarshalManifest encodes m as YAML.
func MarshalManifest(m Manifest) ([]byte, error) {
	if m.Version == 0 {
		m.Version = ManifestVersion
	}
	return yaml.Marshal(m)
}

// UnmarshalManifest decodes a manifest produced by MarshalManifest.
func UnmarshalManifest(b []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest yaml: %w", err)
	}
	if m.Version != ManifestVersion {
		return Manifest{}, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return m, nil
}
