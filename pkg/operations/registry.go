package operations

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aundhe1m/backy-agent/pkg/log"
	"github.com/aundhe1m/backy-agent/pkg/metrics"
	"github.com/aundhe1m/backy-agent/pkg/types"
)

// Registry tracks asynchronous pool lifecycle operations keyed by pool
// GUID. At most one mutating operation may be in flight per GUID; completed
// entries are evicted after the retention window.
type Registry struct {
	retention time.Duration
	interval  time.Duration
	logger    zerolog.Logger

	mu    sync.Mutex
	ops   map[string]*types.Operation
	kinds map[string]string
}

// NewRegistry creates a registry with the given retention window and
// sweep interval.
func NewRegistry(retention, interval time.Duration) *Registry {
	return &Registry{
		retention: retention,
		interval:  interval,
		logger:    log.WithComponent("operations"),
		ops:       make(map[string]*types.Operation),
		kinds:     make(map[string]string),
	}
}

// Begin registers a new operation for the GUID in the given mutating
// state. It fails with a conflict when another mutating operation on the
// same GUID is still in flight.
func (r *Registry) Begin(guid string, state types.OperationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.ops[guid]; ok && existing.State.IsMutating() {
		return types.Conflictf("operation already in progress for pool %s", guid)
	}

	r.ops[guid] = &types.Operation{
		PoolGroupGUID: guid,
		State:         state,
		StartedAt:     time.Now(),
	}
	r.kinds[guid] = string(state)
	metrics.OperationsActive.Inc()

	r.logger.Debug().Str("pool_guid", guid).Str("state", string(state)).Msg("Operation started")
	return nil
}

// Append adds transcript lines to the operation. The transcript is
// append-only until completion.
func (r *Registry) Append(guid string, lines ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if op, ok := r.ops[guid]; ok {
		op.Transcript = append(op.Transcript, lines...)
	}
}

// SetDetails records the md device name and mount path on the operation.
func (r *Registry) SetDetails(guid, mdDeviceName, mountPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if op, ok := r.ops[guid]; ok {
		if mdDeviceName != "" {
			op.MdDeviceName = mdDeviceName
		}
		if mountPath != "" {
			op.MountPath = mountPath
		}
	}
}

// Complete transitions the operation to a terminal state.
func (r *Registry) Complete(guid string, state types.OperationState, errorMessage string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.ops[guid]
	if !ok {
		return
	}

	op.State = state
	op.ErrorMessage = errorMessage
	now := time.Now()
	op.CompletedAt = &now
	metrics.OperationsActive.Dec()

	outcome := "success"
	if state == types.StateFailed {
		outcome = "failure"
	}
	metrics.OperationsTotal.WithLabelValues(r.kinds[guid], outcome).Inc()

	r.logger.Info().
		Str("pool_guid", guid).
		Str("state", string(state)).
		Str("error", errorMessage).
		Msg("Operation completed")
}

// Get returns a snapshot of the operation for the GUID.
func (r *Registry) Get(guid string) (*types.Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	op, ok := r.ops[guid]
	if !ok {
		return nil, false
	}
	return op.Clone(), true
}

// Transcript returns the operation's command transcript.
func (r *Registry) Transcript(guid string) ([]string, bool) {
	op, ok := r.Get(guid)
	if !ok {
		return nil, false
	}
	return op.Transcript, true
}

// Run sweeps completed operations past the retention window until ctx is
// cancelled.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("Operation sweeper started")

	for {
		select {
		case <-ticker.C:
			r.sweep(time.Now())
		case <-ctx.Done():
			r.logger.Info().Msg("Operation sweeper stopped")
			return nil
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for guid, op := range r.ops {
		if op.CompletedAt != nil && now.Sub(*op.CompletedAt) > r.retention {
			delete(r.ops, guid)
			delete(r.kinds, guid)
			evicted++
		}
	}
	if evicted > 0 {
		r.logger.Debug().Int("evicted", evicted).Msg("Swept completed operations")
	}
}
