// Package pipeline defines the configurable stage pipeline a role moves
// through, including per-stage SLA thresholds used by the rule engine.
package pipeline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultStageHours applies to any stage with no configured threshold.
	DefaultStageHours = 72.0
	// DefaultMaxTotalHours is the global total-age threshold (30 days).
	DefaultMaxTotalHours = 720.0

	minStages = 2
	maxStages = 10
)

type Stage struct {
	Name         string  `yaml:"name"`
	SLAHours     float64 `yaml:"sla_hours"`
	AwaitsClient bool    `yaml:"awaits_client"`
}

type Config struct {
	Version       int     `yaml:"version"`
	Stages        []Stage `yaml:"stages"`
	MaxTotalHours float64 `yaml:"max_total_hours"`
	Escalations   bool    `yaml:"escalations"`
	ChaseTasks    bool    `yaml:"chase_tasks"`
}

// Default returns the built-in six stage pipeline used when no config
// file is provided.
func Default() Config {
	return Config{
		Version: 1,
		Stages: []Stage{
			{Name: "Sourced", SLAHours: 96},
			{Name: "Screening", SLAHours: 72},
			{Name: "Submitted", SLAHours: 48},
			{Name: "Client Review", SLAHours: 96, AwaitsClient: true},
			{Name: "Interview", SLAHours: 120},
			{Name: "Placed"},
		},
		MaxTotalHours: DefaultMaxTotalHours,
		Escalations:   true,
		ChaseTasks:    true,
	}
}

// Load reads a pipeline config from path, falling back to Default when
// path is empty.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates a config from raw YAML bytes. Omitted
// escalations/chase_tasks keys mean enabled; only an explicit false
// turns them off.
func FromYAML(data []byte) (Config, error) {
	var raw struct {
		Version       int     `yaml:"version"`
		Stages        []Stage `yaml:"stages"`
		MaxTotalHours float64 `yaml:"max_total_hours"`
		Escalations   *bool   `yaml:"escalations"`
		ChaseTasks    *bool   `yaml:"chase_tasks"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("invalid pipeline yaml: %w", err)
	}

	cfg := Config{
		Version:       raw.Version,
		Stages:        raw.Stages,
		MaxTotalHours: raw.MaxTotalHours,
		Escalations:   raw.Escalations == nil || *raw.Escalations,
		ChaseTasks:    raw.ChaseTasks == nil || *raw.ChaseTasks,
	}
	if cfg.MaxTotalHours == 0 {
		cfg.MaxTotalHours = DefaultMaxTotalHours
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.Stages) < minStages || len(c.Stages) > maxStages {
		return fmt.Errorf("pipeline must have between %d and %d stages, got %d", minStages, maxStages, len(c.Stages))
	}
	for i, s := range c.Stages {
		if s.Name == "" {
			return fmt.Errorf("stage %d has no name", i)
		}
		if s.SLAHours < 0 {
			return fmt.Errorf("stage %d has negative sla_hours", i)
		}
	}
	if c.MaxTotalHours <= 0 {
		return fmt.Errorf("max_total_hours must be positive")
	}
	return nil
}

// TerminalStage is the last configured stage. Roles in it are exempt
// from SLA checks.
func (c Config) TerminalStage() int {
	return len(c.Stages) - 1
}

// AwaitingStage returns the index of the first stage flagged
// awaits_client, or -1 when none is configured.
func (c Config) AwaitingStage() int {
	for i, s := range c.Stages {
		if s.AwaitsClient {
			return i
		}
	}
	return -1
}

// StageName resolves a stage index to its display name. Out-of-range
// indices happen with stale events after a pipeline edit.
func (c Config) StageName(stage int) string {
	if stage < 0 || stage >= len(c.Stages) {
		return fmt.Sprintf("Stage %d", stage)
	}
	return c.Stages[stage].Name
}

// SLAFor returns the hour threshold for a stage, falling back to
// DefaultStageHours when unset or out of range.
func (c Config) SLAFor(stage int) float64 {
	if stage < 0 || stage >= len(c.Stages) || c.Stages[stage].SLAHours == 0 {
		return DefaultStageHours
	}
	return c.Stages[stage].SLAHours
}
