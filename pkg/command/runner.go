package command

import (
	"context"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aundhe1m/backy-agent/pkg/log"
	"github.com/aundhe1m/backy-agent/pkg/metrics"
	"github.com/aundhe1m/backy-agent/pkg/types"
)

// Runner executes external commands. Implementations must always wait for
// the child to exit and must sanitise captured output.
type Runner interface {
	Run(ctx context.Context, command string, elevate bool) types.CommandResult
}

// ExecRunner runs commands on the host, optionally prefixed with a privilege
// elevation command.
type ExecRunner struct {
	elevation string
	logger    zerolog.Logger
}

// NewExecRunner creates a runner. elevation is the command prefixed to
// elevated invocations (e.g. "sudo"); empty disables elevation.
func NewExecRunner(elevation string) *ExecRunner {
	return &ExecRunner{
		elevation: elevation,
		logger:    log.WithComponent("command"),
	}
}

// Run executes the literal argv string and returns its merged, sanitised
// output. A non-zero exit returns Success=false with the captured output;
// a spawn failure returns Success=false, ExitCode=-1 and the error message.
func (r *ExecRunner) Run(ctx context.Context, command string, elevate bool) types.CommandResult {
	result := types.CommandResult{Command: command}

	argv := strings.Fields(command)
	if len(argv) == 0 {
		result.ExitCode = -1
		result.Output = "empty command"
		return result
	}

	binary := argv[0]
	if elevate && r.elevation != "" {
		argv = append(strings.Fields(r.elevation), argv...)
	}

	timer := metrics.NewTimer()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	raw, err := cmd.CombinedOutput()
	timer.ObserveDurationVec(metrics.CommandDuration, binary)

	result.Output = Sanitize(string(raw))

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Spawn failure: the binary never ran.
			result.ExitCode = -1
			result.Output = err.Error()
		}
		metrics.CommandsTotal.WithLabelValues(binary, "failure").Inc()
		r.logger.Warn().
			Str("command", command).
			Int("exit_code", result.ExitCode).
			Msg("Command failed")
		return result
	}

	result.ExitCode = 0
	result.Success = true
	metrics.CommandsTotal.WithLabelValues(binary, "success").Inc()
	r.logger.Debug().
		Str("command", command).
		Msg("Command succeeded")
	return result
}
