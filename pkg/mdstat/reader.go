package mdstat

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aundhe1m/backy-agent/pkg/command"
	"github.com/aundhe1m/backy-agent/pkg/fsreader"
	"github.com/aundhe1m/backy-agent/pkg/log"
	"github.com/aundhe1m/backy-agent/pkg/types"
)

// RecordLookup resolves a pool GUID to its metadata record. Satisfied by
// the metadata store.
type RecordLookup interface {
	ByGUID(guid string) (*types.PoolRecord, error)
}

// Reader provides cached, structured views of /proc/mdstat.
type Reader struct {
	fs     fsreader.Reader
	runner command.Runner
	meta   RecordLookup
	logger zerolog.Logger
}

// NewReader creates a Reader. Caching follows the fsreader TTL.
func NewReader(fs fsreader.Reader, runner command.Runner, meta RecordLookup) *Reader {
	return &Reader{
		fs:     fs,
		runner: runner,
		meta:   meta,
		logger: log.WithComponent("mdstat"),
	}
}

// Stat returns the current parsed mdstat snapshot. An unreadable
// /proc/mdstat falls back to `cat /proc/mdstat` before degrading to an
// empty snapshot.
func (r *Reader) Stat(ctx context.Context) *types.MdStat {
	content := r.fs.ReadProc("mdstat")
	if content == "" {
		result := r.runner.Run(ctx, "cat /proc/mdstat", false)
		if result.Success {
			content = result.Output
		} else {
			r.logger.Warn().Msg("mdstat unavailable, serving empty snapshot")
		}
	}
	return Parse(content)
}

// ArrayByName returns the named array, or nil when absent.
func (r *Reader) ArrayByName(ctx context.Context, name string) *types.MdArray {
	return r.Stat(ctx).ByName(name)
}

// ArrayByGUID resolves a pool GUID through metadata to its last known md
// device name and returns that array. A missing record returns the metadata
// lookup error; a record without an md name, or whose array is absent,
// returns nil without error.
func (r *Reader) ArrayByGUID(ctx context.Context, guid string) (*types.MdArray, error) {
	rec, err := r.meta.ByGUID(guid)
	if err != nil {
		return nil, err
	}
	if rec.LastMdDeviceName == "" {
		return nil, nil
	}
	return r.ArrayByName(ctx, rec.LastMdDeviceName), nil
}

// Invalidate drops the cached mdstat content so the next Stat rereads the
// kernel state. Called after every mutating pool operation.
func (r *Reader) Invalidate() {
	r.fs.Invalidate(r.fs.ProcPath("mdstat"))
}
