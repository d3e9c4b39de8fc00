package models

import "time"

// Status represents the outcome status of a single evaluator.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// OverallStatus is the summary verdict derived across all evaluator results.
type OverallStatus string

const (
	OverallPassed OverallStatus = "passed"
	OverallFailed OverallStatus = "failed"
	// OverallPartial means no evaluator failed but at least one was skipped.
	OverallPartial OverallStatus = "partial"
)

// EvaluationResult is the immutable record produced by one evaluator.
// Exactly one is produced per configured evaluator per run.
type EvaluationResult struct {
	EvaluatorName string            `json:"evaluator"`
	Status        Status            `json:"status"`
	Metrics       map[string]any    `json:"metrics,omitempty"`
	Message       string            `json:"message,omitempty"`
	DurationMs    int64             `json:"duration_ms"`
	Timestamp     time.Time         `json:"timestamp"`
	Assertions    []AssertionResult `json:"assertions,omitempty"`
	Artifacts     []string          `json:"artifacts,omitempty"`
	ErrorMsg      string            `json:"error,omitempty"`
}

// AssertionResult records a single configured threshold comparison.
type AssertionResult struct {
	Name      string  `json:"name"`
	Threshold float64 `json:"threshold"`
	Actual    float64 `json:"actual"`
	Passed    bool    `json:"passed"`
}

// Summary counts evaluator statuses and carries the derived overall verdict.
type Summary struct {
	Total         int           `json:"total"`
	Passed        int           `json:"passed"`
	Failed        int           `json:"failed"`
	Skipped       int           `json:"skipped"`
	OverallStatus OverallStatus `json:"overall_status"`
}

// StandardLog is the normalized agent execution log. Adapters translate
// their raw CLI output into this shape; the core never inspects raw output.
type StandardLog struct {
	Summary   string `json:"summary,omitempty"`
	Turns     int    `json:"turns,omitempty"`
	ToolCalls int    `json:"tool_calls,omitempty"`
	Raw       string `json:"raw,omitempty"`
}

// AgentStatus describes how the agent execution concluded.
type AgentStatus string

const (
	AgentCompleted   AgentStatus = "completed"
	AgentFailed      AgentStatus = "failed"
	AgentUnavailable AgentStatus = "unavailable"
)

// AgentOutcome records the external agent's execution for the bundle.
type AgentOutcome struct {
	Agent      string       `json:"agent"`
	Status     AgentStatus  `json:"status"`
	ExitCode   int          `json:"exit_code"`
	DurationMs int64        `json:"duration_ms"`
	Log        *StandardLog `json:"log,omitempty"`
}

// WorkspaceInfo is the on-disk layout recorded in the bundle.
type WorkspaceInfo struct {
	RunID        string `json:"run_id"`
	Dir          string `json:"dir"`
	ModifiedDir  string `json:"modified_dir"`
	ExpectedDir  string `json:"expected_dir,omitempty"`
	ArtifactsDir string `json:"artifacts_dir"`
}

// ResultsBundle is the sole durable artifact of a run. Results are ordered
// by evaluator configuration order, independent of completion order.
type ResultsBundle struct {
	RunID     string             `json:"run_id"`
	SpecName  string             `json:"spec_name"`
	Timestamp time.Time          `json:"timestamp"`
	Workspace WorkspaceInfo      `json:"workspace"`
	Agent     AgentOutcome       `json:"agent"`
	Results   []EvaluationResult `json:"results"`
	Summary   Summary            `json:"summary"`
}
