package pool

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aundhe1m/backy-agent/pkg/command"
	"github.com/aundhe1m/backy-agent/pkg/operations"
	"github.com/aundhe1m/backy-agent/pkg/types"
)

// sequence runs the steps of one lifecycle operation, appending every
// command and its sanitised output to the operation transcript. Steps may
// register compensating commands that unwind in LIFO order on failure.
type sequence struct {
	runner   command.Runner
	registry *operations.Registry
	guid     string
	logger   zerolog.Logger

	rollbacks []string
}

func newSequence(runner command.Runner, registry *operations.Registry, guid string, logger zerolog.Logger) *sequence {
	return &sequence{
		runner:   runner,
		registry: registry,
		guid:     guid,
		logger:   logger,
	}
}

// exec runs one command and records it.
func (s *sequence) exec(ctx context.Context, cmd string, elevate bool) types.CommandResult {
	result := s.runner.Run(ctx, cmd, elevate)
	s.registry.Append(s.guid, "$ "+cmd, result.Output)
	return result
}

// onFailure registers a compensating command for a completed step.
func (s *sequence) onFailure(cmd string) {
	s.rollbacks = append(s.rollbacks, cmd)
}

// unwind runs registered compensations in reverse order. Compensation
// failures are logged but never mask the original error.
func (s *sequence) unwind(ctx context.Context) {
	for i := len(s.rollbacks) - 1; i >= 0; i-- {
		cmd := s.rollbacks[i]
		result := s.exec(ctx, cmd, true)
		if !result.Success {
			s.logger.Warn().
				Str("command", cmd).
				Int("exit_code", result.ExitCode).
				Msg("Rollback command failed")
		}
	}
	s.rollbacks = nil
}
