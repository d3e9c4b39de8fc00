package models

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/evalcraft/evalcraft/internal/hooks"
	"gopkg.in/yaml.v3"
)

// RunSpec is the complete specification of one evaluation run.
type RunSpec struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Repo        RepoRef           `yaml:"repo"`
	Expected    *RepoRef          `yaml:"expected,omitempty"`
	Agent       AgentConfig       `yaml:"agent"`
	Config      RunConfig         `yaml:"config"`
	Hooks       hooks.Config      `yaml:"hooks,omitempty"`
	Evaluators  []EvaluatorConfig `yaml:"evaluators"`

	// specDir is the directory the spec was loaded from, for resolving
	// relative paths. Not serialized.
	specDir string
}

// RepoRef identifies a repository state to materialize. URL may be a
// remote clone URL or a local directory path. Ref is a branch or commit;
// empty means the default branch.
type RepoRef struct {
	URL string `yaml:"url"`
	Ref string `yaml:"ref,omitempty"`
}

// AgentConfig selects and configures the agent adapter driving the change.
type AgentConfig struct {
	Kind       string   `yaml:"type"`
	Command    string   `yaml:"command,omitempty"`
	Env        []string `yaml:"env,omitempty"`
	TimeoutSec int      `yaml:"timeout_seconds,omitempty"`
}

// RunConfig controls orchestration behavior.
type RunConfig struct {
	WorkspaceRoot       string `yaml:"workspace_root,omitempty"`
	KeepWorkspace       bool   `yaml:"keep_workspace,omitempty"`
	MaxConcurrency      int    `yaml:"max_concurrency,omitempty"`
	TimeoutSec          int    `yaml:"timeout_seconds,omitempty"`
	EvaluatorTimeoutSec int    `yaml:"evaluator_timeout_seconds,omitempty"`
}

// EvaluatorConfig defines one evaluator in configured order.
type EvaluatorConfig struct {
	Kind       string         `yaml:"type"`
	Name       string         `yaml:"name"`
	Parameters map[string]any `yaml:"config,omitempty"`
}

// LoadRunSpec loads and validates a run spec from a YAML file.
func LoadRunSpec(path string) (*RunSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var spec RunSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	absDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving spec directory: %w", err)
	}
	spec.specDir = absDir

	return &spec, nil
}

// SpecDir returns the directory the spec was loaded from.
func (s *RunSpec) SpecDir() string { return s.specDir }

// Validate checks structural constraints that the JSON schema cannot express.
func (s *RunSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("spec name is required")
	}
	if s.Repo.URL == "" {
		return fmt.Errorf("repo.url is required")
	}
	if len(s.Evaluators) == 0 {
		return fmt.Errorf("at least one evaluator is required")
	}
	seen := make(map[string]bool, len(s.Evaluators))
	for i, ec := range s.Evaluators {
		if ec.Kind == "" {
			return fmt.Errorf("evaluators[%d]: type is required", i)
		}
		if ec.Name == "" {
			return fmt.Errorf("evaluators[%d]: name is required", i)
		}
		if seen[ec.Name] {
			return fmt.Errorf("duplicate evaluator name %q", ec.Name)
		}
		seen[ec.Name] = true
	}
	if s.Config.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency cannot be negative, got %d", s.Config.MaxConcurrency)
	}
	return nil
}
