package pool

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aundhe1m/backy-agent/pkg/command"
	"github.com/aundhe1m/backy-agent/pkg/drives"
	"github.com/aundhe1m/backy-agent/pkg/events"
	"github.com/aundhe1m/backy-agent/pkg/log"
	"github.com/aundhe1m/backy-agent/pkg/mdstat"
	"github.com/aundhe1m/backy-agent/pkg/metadata"
	"github.com/aundhe1m/backy-agent/pkg/metrics"
	"github.com/aundhe1m/backy-agent/pkg/mounts"
	"github.com/aundhe1m/backy-agent/pkg/types"
)

// Reconciler aligns persisted pool metadata with the kernel's current md
// and mount state. Drive serials are the membership identity; md device
// names are only hints that reconciliation corrects.
type Reconciler struct {
	meta      *metadata.Store
	drives    *drives.Cache
	md        *mdstat.Reader
	mounts    *mounts.Reader
	runner    command.Runner
	broker    *events.Broker
	autoMount bool
	logger    zerolog.Logger
}

// NewReconciler creates a reconciler. broker may be nil. autoMount gates
// the mount step of recovery; name correction always runs.
func NewReconciler(
	meta *metadata.Store,
	driveCache *drives.Cache,
	md *mdstat.Reader,
	mountReader *mounts.Reader,
	runner command.Runner,
	broker *events.Broker,
	autoMount bool,
) *Reconciler {
	return &Reconciler{
		meta:      meta,
		drives:    driveCache,
		md:        md,
		mounts:    mountReader,
		runner:    runner,
		broker:    broker,
		autoMount: autoMount,
		logger:    log.WithComponent("reconciler"),
	}
}

// Reconcile runs the full startup procedure: correct stale md device
// names, assemble arrays for pools that should be mounted, and re-mount
// them when auto-mount is enabled. Records whose arrays are absent are
// never deleted; the drives may be temporarily offline.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	return r.reconcile(ctx, true)
}

// ValidateAndUpdate is the non-mutating subset of reconciliation: it only
// corrects stale md device names and returns how many records changed.
func (r *Reconciler) ValidateAndUpdate(ctx context.Context) (int, error) {
	return r.reconcile(ctx, false)
}

func (r *Reconciler) reconcile(ctx context.Context, recover bool) (int, error) {
	records, err := r.meta.All()
	if err != nil {
		return 0, err
	}

	serialToMd := r.drives.SerialToMd()
	fixed := 0

	for _, record := range records {
		current := r.currentMdName(record, serialToMd)

		if current != "" {
			if current != record.LastMdDeviceName {
				r.logger.Info().
					Str("pool_guid", record.PoolGroupGUID).
					Str("old", record.LastMdDeviceName).
					Str("new", current).
					Msg("Correcting md device name")
				record.LastMdDeviceName = current
				if err := r.meta.Save(record); err != nil {
					r.logger.Error().Err(err).Str("pool_guid", record.PoolGroupGUID).Msg("Failed to save corrected record")
					continue
				}
				fixed++
				metrics.ReconcileFixedEntriesTotal.Inc()
				r.publish(record, fmt.Sprintf("md device name corrected to %s", current))
			}
		} else if recover && record.IsMounted {
			assembled, err := r.assemble(ctx, record)
			if err != nil {
				r.logger.Warn().
					Err(err).
					Str("pool_guid", record.PoolGroupGUID).
					Msg("Array assembly failed, leaving record for next startup")
				continue
			}
			if assembled != "" && assembled != record.LastMdDeviceName {
				record.LastMdDeviceName = assembled
				if err := r.meta.Save(record); err != nil {
					r.logger.Error().Err(err).Str("pool_guid", record.PoolGroupGUID).Msg("Failed to save assembled record")
					continue
				}
				fixed++
				metrics.ReconcileFixedEntriesTotal.Inc()
				r.publish(record, fmt.Sprintf("array assembled as %s", assembled))
			}
		}

		if recover && r.autoMount {
			r.remount(ctx, record)
		}
	}

	return fixed, nil
}

// currentMdName resolves which md array currently holds the record's
// drives. When the serials disagree, the md with the most members wins and
// a warning is logged.
func (r *Reconciler) currentMdName(record *types.PoolRecord, serialToMd map[string]string) string {
	counts := make(map[string]int)
	order := []string{}
	for _, serial := range record.DriveSerials {
		if md, ok := serialToMd[serial]; ok {
			if counts[md] == 0 {
				order = append(order, md)
			}
			counts[md]++
		}
	}

	if len(order) == 0 {
		return ""
	}
	if len(order) > 1 {
		r.logger.Warn().
			Str("pool_guid", record.PoolGroupGUID).
			Strs("md_devices", order).
			Msg("Pool drives are split across multiple md devices")
	}

	best := order[0]
	for _, md := range order[1:] {
		if counts[md] > counts[best] {
			best = md
		}
	}
	return best
}

// assemble brings a missing array back: a scan pass first, then an
// explicit assemble over the member device paths, then a re-read of mdstat
// to find which md the kernel picked.
func (r *Reconciler) assemble(ctx context.Context, record *types.PoolRecord) (string, error) {
	paths := make([]string, 0, len(record.DriveSerials))
	for _, serial := range record.DriveSerials {
		if d := r.drives.Find(serial); d != nil {
			paths = append(paths, d.DevicePath())
		}
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("no member drives connected")
	}

	r.runner.Run(ctx, "mdadm --scan", true)
	result := r.runner.Run(ctx, fmt.Sprintf("mdadm --assemble --scan %s", strings.Join(paths, " ")), true)
	if !result.Success {
		return "", fmt.Errorf("mdadm --assemble failed: %s", result.Output)
	}

	r.md.Invalidate()
	if _, err := r.drives.Refresh(ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Drive refresh after assembly failed")
	}

	// Select the array whose members intersect the record's drives.
	stat := r.md.Stat(ctx)
	for _, array := range stat.Arrays {
		for _, dev := range array.Devices {
			if serial := r.serialOfDevice(dev.Name); serial != "" && record.HasSerial(serial) {
				return array.Name, nil
			}
		}
	}
	return "", fmt.Errorf("assembled array not found in mdstat")
}

// remount restores the record's mount intent when the array is up but the
// filesystem is not mounted.
func (r *Reconciler) remount(ctx context.Context, record *types.PoolRecord) {
	if !record.IsMounted || record.LastMountPath == "" || record.LastMdDeviceName == "" {
		return
	}

	device := "/dev/" + record.LastMdDeviceName
	if r.mounts.MountPointOf(device) != "" {
		return
	}
	if r.md.ArrayByName(ctx, record.LastMdDeviceName) == nil {
		return
	}

	if result := r.runner.Run(ctx, "mkdir -p "+record.LastMountPath, true); !result.Success {
		r.logger.Warn().Str("path", record.LastMountPath).Msg("mkdir failed during recovery mount")
		return
	}
	result := r.runner.Run(ctx, fmt.Sprintf("mount %s %s", device, record.LastMountPath), true)
	if !result.Success {
		r.logger.Warn().
			Str("pool_guid", record.PoolGroupGUID).
			Str("path", record.LastMountPath).
			Msg("Recovery mount failed")
		return
	}

	r.logger.Info().
		Str("pool_guid", record.PoolGroupGUID).
		Str("device", device).
		Str("path", record.LastMountPath).
		Msg("Pool re-mounted on recovery")
	r.publish(record, fmt.Sprintf("re-mounted at %s", record.LastMountPath))
}

func (r *Reconciler) serialOfDevice(name string) string {
	for _, d := range r.drives.Get() {
		if d.Name == name {
			return d.Serial
		}
	}
	return ""
}

func (r *Reconciler) publish(record *types.PoolRecord, message string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(&events.Event{
		Type:     events.EventPoolReconciled,
		PoolGUID: record.PoolGroupGUID,
		Message:  message,
	})
}
