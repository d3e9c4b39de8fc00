package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/evalcraft/evalcraft/internal/models"
)

// KindCommand runs an arbitrary configured command line.
const KindCommand = "command"

// maxRawLog caps how much raw output the bundle carries.
const maxRawLog = 64 * 1024

// baselineEnv is always passed through from the parent environment so the
// child can resolve binaries and its home directory.
var baselineEnv = []string{"PATH", "HOME"}

// CommandAgent executes a configured command line in the modified tree.
// The child environment is built from an explicit allowlist and is never
// inherited wholesale.
type CommandAgent struct {
	command string
	env     []string
}

// NewCommandAgent builds a command adapter from its configuration.
func NewCommandAgent(cfg models.AgentConfig) (*CommandAgent, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("command agent: command is required")
	}
	return &CommandAgent{command: cfg.Command, env: cfg.Env}, nil
}

func (a *CommandAgent) Name() string { return KindCommand }

// CheckAvailability reports whether the command's binary resolves.
func (a *CommandAgent) CheckAvailability() bool {
	args, err := shellwords.Parse(a.command)
	if err != nil || len(args) == 0 {
		return false
	}
	_, err = exec.LookPath(args[0])
	return err == nil
}

// Execute runs the command in req.WorkDir with the filtered environment.
func (a *CommandAgent) Execute(ctx context.Context, req Request) (*models.AgentOutcome, error) {
	args, err := shellwords.Parse(a.command)
	if err != nil {
		return nil, fmt.Errorf("parsing agent command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("agent command is empty")
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = req.WorkDir
	cmd.Env = FilterEnv(a.env)
	if req.Prompt != "" {
		cmd.Stdin = strings.NewReader(req.Prompt)
	}

	start := time.Now()
	output, runErr := cmd.CombinedOutput()

	outcome := &models.AgentOutcome{
		Agent:      a.Name(),
		Status:     models.AgentCompleted,
		DurationMs: time.Since(start).Milliseconds(),
		Log:        a.NormalizeLog(string(output)),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// The process never ran (bad binary, cancelled before start).
			return nil, fmt.Errorf("running agent command: %w", runErr)
		}
		outcome.Status = models.AgentFailed
		outcome.ExitCode = exitErr.ExitCode()
		if ctx.Err() == context.DeadlineExceeded {
			outcome.Log.Summary = fmt.Sprintf("agent timed out after %s", req.Timeout)
		}
	}

	return outcome, nil
}

// NormalizeLog keeps the raw tail and summarizes with the last non-empty
// line the tool printed.
func (a *CommandAgent) NormalizeLog(raw string) *models.StandardLog {
	log := &models.StandardLog{Raw: raw}
	if len(log.Raw) > maxRawLog {
		log.Raw = log.Raw[len(log.Raw)-maxRawLog:]
	}

	lines := strings.Split(strings.TrimRight(raw, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			log.Summary = line
			break
		}
	}
	return log
}

// FilterEnv builds the child environment from an allowlist. Entries of the
// form KEY=VALUE are passed literally; bare KEY entries are copied from the
// parent environment when set. PATH and HOME always pass through.
func FilterEnv(allow []string) []string {
	env := make([]string, 0, len(allow)+len(baselineEnv))
	seen := make(map[string]bool, len(allow)+len(baselineEnv))

	add := func(key, value string) {
		if seen[key] {
			return
		}
		seen[key] = true
		env = append(env, key+"="+value)
	}

	for _, entry := range allow {
		if key, value, ok := strings.Cut(entry, "="); ok {
			add(key, value)
			continue
		}
		if value, ok := os.LookupEnv(entry); ok {
			add(entry, value)
		}
	}

	for _, key := range baselineEnv {
		if value, ok := os.LookupEnv(key); ok {
			add(key, value)
		}
	}

	return env
}
