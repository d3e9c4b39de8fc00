package agent

import (
	"context"
	"time"

	"github.com/evalcraft/evalcraft/internal/models"
)

// KindMock simulates an agent without running anything. It exists for
// harness testing and for scoring trees modified out of band.
const KindMock = "mock"

// MockAgent produces a scripted outcome. An optional Script mutates the
// work tree before the outcome is reported, standing in for the real
// tool's edits.
type MockAgent struct {
	Unavailable bool
	ExitCode    int
	Summary     string
	Delay       time.Duration

	// Script runs against the work dir during Execute. A script error
	// becomes a failed outcome.
	Script func(workDir string) error
}

// NewMockAgent builds a mock adapter. The configured command string is
// carried as the log summary so runs remain distinguishable.
func NewMockAgent(cfg models.AgentConfig) *MockAgent {
	return &MockAgent{Summary: cfg.Command}
}

func (a *MockAgent) Name() string { return KindMock }

func (a *MockAgent) CheckAvailability() bool { return !a.Unavailable }

func (a *MockAgent) Execute(ctx context.Context, req Request) (*models.AgentOutcome, error) {
	start := time.Now()

	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	outcome := &models.AgentOutcome{
		Agent:    a.Name(),
		Status:   models.AgentCompleted,
		ExitCode: a.ExitCode,
		Log:      a.NormalizeLog(a.Summary),
	}
	if a.ExitCode != 0 {
		outcome.Status = models.AgentFailed
	}

	if a.Script != nil {
		if err := a.Script(req.WorkDir); err != nil {
			outcome.Status = models.AgentFailed
			outcome.Log.Summary = err.Error()
		}
	}

	outcome.DurationMs = time.Since(start).Milliseconds()
	return outcome, nil
}

func (a *MockAgent) NormalizeLog(raw string) *models.StandardLog {
	return &models.StandardLog{Summary: raw, Raw: raw}
}
