package pool

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aundhe1m/backy-agent/pkg/command"
	"github.com/aundhe1m/backy-agent/pkg/drives"
	"github.com/aundhe1m/backy-agent/pkg/events"
	"github.com/aundhe1m/backy-agent/pkg/log"
	"github.com/aundhe1m/backy-agent/pkg/mdstat"
	"github.com/aundhe1m/backy-agent/pkg/metadata"
	"github.com/aundhe1m/backy-agent/pkg/mounts"
	"github.com/aundhe1m/backy-agent/pkg/operations"
	"github.com/aundhe1m/backy-agent/pkg/types"
)

const (
	visibilityRetries = 10
	visibilityDelay   = 200 * time.Millisecond
)

// Operator executes mutating pool lifecycle sequences. Each sequence runs
// its steps strictly in order, records every command to the operation
// transcript, and unwinds registered compensations on failure.
type Operator struct {
	runner   command.Runner
	drives   *drives.Cache
	md       *mdstat.Reader
	mounts   *mounts.Reader
	meta     *metadata.Store
	registry *operations.Registry
	inv      *Inventory
	broker   *events.Broker
	logger   zerolog.Logger
}

// NewOperator creates a pool operator. broker may be nil.
func NewOperator(
	runner command.Runner,
	driveCache *drives.Cache,
	md *mdstat.Reader,
	mountReader *mounts.Reader,
	meta *metadata.Store,
	registry *operations.Registry,
	inv *Inventory,
	broker *events.Broker,
) *Operator {
	return &Operator{
		runner:   runner,
		drives:   driveCache,
		md:       md,
		mounts:   mountReader,
		meta:     meta,
		registry: registry,
		inv:      inv,
		broker:   broker,
		logger:   log.WithComponent("pool"),
	}
}

// CreateRequest is the input of CreatePool.
type CreateRequest struct {
	Label         string
	DriveSerials  []string
	DriveLabels   map[string]string
	MountPath     string
	PoolGroupGUID string
}

// CreatePool validates the request, registers an operation in state
// creating, and runs the creation sequence on a background worker. The
// returned GUID identifies the operation; callers poll it until the state
// leaves creating.
func (o *Operator) CreatePool(ctx context.Context, req CreateRequest) (string, error) {
	if strings.TrimSpace(req.Label) == "" {
		return "", types.Validationf("pool label must not be empty")
	}
	if len(req.DriveSerials) == 0 {
		return "", types.Validationf("at least one drive is required")
	}
	if req.MountPath == "" || !filepath.IsAbs(req.MountPath) {
		return "", types.Validationf("mount path must be absolute, got '%s'", req.MountPath)
	}

	guid := req.PoolGroupGUID
	if guid == "" {
		guid = uuid.NewString()
	} else if _, err := uuid.Parse(guid); err != nil {
		return "", types.Validationf("invalid pool group guid '%s'", guid)
	}
	if _, err := o.meta.ByGUID(guid); err == nil {
		return "", types.Validationf("pool with guid %s already exists", guid)
	}

	for _, serial := range req.DriveSerials {
		if o.drives.Find(serial) == nil {
			return "", types.Validationf("drive with serial '%s' not found", serial)
		}
		if rec, err := o.meta.BySerial(serial); err == nil {
			return "", types.Validationf("drive '%s' already belongs to pool '%s'", serial, rec.Label)
		}
	}

	if other := o.poolMountedAt(req.MountPath, guid); other != nil {
		return "", types.Validationf("Mount path '%s' is already in use by pool '%s'", req.MountPath, other.LastMdDeviceName)
	}

	if err := o.registry.Begin(guid, types.StateCreating); err != nil {
		return "", err
	}
	o.registry.SetDetails(guid, "", req.MountPath)

	// The sequence outlives the HTTP request that started it.
	bg := context.WithoutCancel(ctx)
	go o.runCreate(bg, guid, req)

	return guid, nil
}

func (o *Operator) runCreate(ctx context.Context, guid string, req CreateRequest) {
	logger := log.Op("pool", "create", guid)
	seq := newSequence(o.runner, o.registry, guid, logger)

	fail := func(msg string) {
		logger.Error().Str("error", msg).Msg("Pool creation failed")
		seq.unwind(ctx)
		o.registry.Complete(guid, types.StateFailed, msg)
		o.refreshState(ctx)
		o.publish(events.EventPoolCreateFailed, guid, msg)
	}

	mdName, err := o.freeMdName(ctx)
	if err != nil {
		fail(err.Error())
		return
	}
	o.registry.SetDetails(guid, mdName, req.MountPath)

	paths := make([]string, 0, len(req.DriveSerials))
	for _, serial := range req.DriveSerials {
		d := o.drives.Find(serial)
		if d == nil {
			fail(fmt.Sprintf("drive with serial '%s' disappeared before creation", serial))
			return
		}
		paths = append(paths, d.DevicePath())
	}

	create := fmt.Sprintf("mdadm --create /dev/%s --level=1 --raid-devices=%d %s --run --force",
		mdName, len(paths), strings.Join(paths, " "))
	if result := seq.exec(ctx, create, true); !result.Success {
		fail("mdadm --create failed: " + result.Output)
		return
	}
	seq.onFailure(fmt.Sprintf("mdadm --stop /dev/%s", mdName))

	if result := seq.exec(ctx, fmt.Sprintf("mkfs.ext4 -F /dev/%s", mdName), true); !result.Success {
		fail("mkfs.ext4 failed: " + result.Output)
		return
	}

	if result := seq.exec(ctx, "mkdir -p "+req.MountPath, true); !result.Success {
		fail("mkdir failed: " + result.Output)
		return
	}

	if result := seq.exec(ctx, fmt.Sprintf("mount /dev/%s %s", mdName, req.MountPath), true); !result.Success {
		fail("mount failed: " + result.Output)
		return
	}
	seq.onFailure("umount " + req.MountPath)

	record := &types.PoolRecord{
		PoolGroupGUID:    guid,
		Label:            req.Label,
		DriveSerials:     append([]string(nil), req.DriveSerials...),
		DriveLabels:      req.DriveLabels,
		LastMdDeviceName: mdName,
		LastMountPath:    req.MountPath,
		IsMounted:        true,
		CreatedAt:        time.Now().UTC(),
	}
	if err := o.meta.Save(record); err != nil {
		fail("failed to persist pool metadata: " + err.Error())
		return
	}

	o.refreshState(ctx)
	o.waitVisible(ctx, guid)
	o.registry.Complete(guid, types.StateReady, "")
	o.publish(events.EventPoolCreated, guid, fmt.Sprintf("pool '%s' created on /dev/%s", req.Label, mdName))
	logger.Info().Str("md", mdName).Str("mount_path", req.MountPath).Msg("Pool created")
}

// MountPool mounts an existing pool at mountPath, assembling the array
// first when its md device is gone. Returns a human-readable message.
func (o *Operator) MountPool(ctx context.Context, guid, mountPath string) (string, error) {
	record, err := o.meta.ByGUID(guid)
	if err != nil {
		return "", err
	}
	if mountPath == "" || !filepath.IsAbs(mountPath) {
		return "", types.Validationf("mount path must be absolute, got '%s'", mountPath)
	}

	if other := o.poolMountedAt(mountPath, guid); other != nil {
		return "", types.Validationf("Mount path '%s' is already in use by pool '%s'", mountPath, other.LastMdDeviceName)
	}

	if err := o.registry.Begin(guid, types.StateMounting); err != nil {
		return "", err
	}
	o.registry.SetDetails(guid, record.LastMdDeviceName, mountPath)

	logger := log.Op("pool", "mount", guid)
	seq := newSequence(o.runner, o.registry, guid, logger)

	fail := func(msg string) (string, error) {
		o.registry.Complete(guid, types.StateFailed, msg)
		o.refreshState(ctx)
		return "", fmt.Errorf("%s", msg)
	}

	mdName := record.LastMdDeviceName
	needAssembly := mdName == ""
	if !needAssembly {
		detail := seq.exec(ctx, fmt.Sprintf("mdadm --detail /dev/%s", mdName), true)
		needAssembly = !detail.Success
	}
	if needAssembly {
		// The kernel no longer has the array under its old name; assemble
		// it under a fresh one.
		mdName, err = o.freeMdName(ctx)
		if err != nil {
			return fail(err.Error())
		}
		o.registry.SetDetails(guid, mdName, mountPath)

		seq.exec(ctx, "mdadm --scan", true)

		paths := o.memberPaths(record)
		if len(paths) == 0 {
			return fail("none of the pool's drives are currently connected")
		}
		assemble := fmt.Sprintf("mdadm --assemble /dev/%s %s", mdName, strings.Join(paths, " "))
		if result := seq.exec(ctx, assemble, true); !result.Success {
			return fail("mdadm --assemble failed: " + result.Output)
		}

		record.LastMdDeviceName = mdName
		if err := o.meta.Save(record); err != nil {
			return fail("failed to persist pool metadata: " + err.Error())
		}
		o.md.Invalidate()
	}

	device := "/dev/" + mdName
	if current := o.mounts.MountPointOf(device); current != "" {
		if current == mountPath {
			o.registry.Complete(guid, types.StateReady, "")
			return fmt.Sprintf("pool already mounted at %s", mountPath), nil
		}
		o.registry.Complete(guid, types.StateFailed, "pool mounted elsewhere")
		return "", types.Validationf("Mount path '%s' is already in use by pool '%s'", current, mdName)
	}

	if result := seq.exec(ctx, "mkdir -p "+mountPath, true); !result.Success {
		return fail("mkdir failed: " + result.Output)
	}
	if result := seq.exec(ctx, fmt.Sprintf("mount %s %s", device, mountPath), true); !result.Success {
		return fail("mount failed: " + result.Output)
	}

	record.LastMountPath = mountPath
	record.IsMounted = true
	if err := o.meta.Save(record); err != nil {
		return fail("failed to persist pool metadata: " + err.Error())
	}

	o.refreshState(ctx)
	o.registry.Complete(guid, types.StateReady, "")
	o.publish(events.EventPoolMounted, guid, fmt.Sprintf("pool mounted at %s", mountPath))
	return fmt.Sprintf("pool mounted at %s", mountPath), nil
}

// UnmountPool unmounts a pool and stops its md array. Unmounting an
// already-unmounted pool succeeds with a "not mounted" message. The
// operation is refused while processes hold the mountpoint open.
func (o *Operator) UnmountPool(ctx context.Context, guid string) (string, error) {
	record, err := o.meta.ByGUID(guid)
	if err != nil {
		return "", err
	}

	mdName := record.LastMdDeviceName
	mountPoint := ""
	if mdName != "" {
		mountPoint = o.mounts.MountPointOf("/dev/" + mdName)
	}
	if mountPoint == "" {
		if record.IsMounted {
			record.IsMounted = false
			if err := o.meta.Save(record); err != nil {
				return "", err
			}
		}
		return "not mounted", nil
	}

	if procs := o.processesUsing(ctx, mountPoint); len(procs) > 0 {
		return "", types.Validationf("Cannot unmount: processes using mount point: %s", processList(procs))
	}

	if err := o.registry.Begin(guid, types.StateUnmounting); err != nil {
		return "", err
	}
	o.registry.SetDetails(guid, mdName, mountPoint)

	logger := log.Op("pool", "unmount", guid)
	seq := newSequence(o.runner, o.registry, guid, logger)

	if result := seq.exec(ctx, "umount "+mountPoint, true); !result.Success {
		msg := "umount failed: " + result.Output
		o.registry.Complete(guid, types.StateFailed, msg)
		return "", fmt.Errorf("%s", msg)
	}

	record.IsMounted = false
	if err := o.meta.Save(record); err != nil {
		o.registry.Complete(guid, types.StateFailed, err.Error())
		return "", err
	}

	if result := seq.exec(ctx, fmt.Sprintf("mdadm --stop /dev/%s", mdName), true); !result.Success {
		logger.Warn().Str("md", mdName).Msg("mdadm --stop failed after unmount")
	}

	o.refreshState(ctx)
	o.registry.Complete(guid, types.StateUnmounted, "")
	o.publish(events.EventPoolUnmounted, guid, fmt.Sprintf("pool unmounted from %s", mountPoint))
	return fmt.Sprintf("pool unmounted from %s", mountPoint), nil
}

// RemovePool unmounts best-effort, wipes RAID signatures from the member
// devices, removes the md device and deletes the metadata entry.
func (o *Operator) RemovePool(ctx context.Context, guid string) (string, error) {
	record, err := o.meta.ByGUID(guid)
	if err != nil {
		return "", err
	}

	if err := o.registry.Begin(guid, types.StateRemoving); err != nil {
		return "", err
	}

	logger := log.Op("pool", "remove", guid)
	seq := newSequence(o.runner, o.registry, guid, logger)
	mdName := record.LastMdDeviceName

	// Member discovery must precede the stop: --detail answers only while
	// the array exists. Metadata serials are the fallback.
	var members []string
	if mdName != "" {
		detail := seq.exec(ctx, fmt.Sprintf("mdadm --detail /dev/%s", mdName), true)
		if detail.Success {
			members = componentDevices(detail.Output)
		}
	}
	if len(members) == 0 {
		members = o.memberPaths(record)
	}

	if mdName != "" {
		if mountPoint := o.mounts.MountPointOf("/dev/" + mdName); mountPoint != "" {
			if result := seq.exec(ctx, "umount "+mountPoint, true); !result.Success {
				logger.Warn().Str("mountpoint", mountPoint).Msg("Best-effort unmount failed, continuing removal")
			}
		}
		if result := seq.exec(ctx, fmt.Sprintf("mdadm --stop /dev/%s", mdName), true); !result.Success {
			logger.Warn().Str("md", mdName).Msg("mdadm --stop failed, continuing removal")
		}
	}

	for _, member := range members {
		if result := seq.exec(ctx, "wipefs -a "+member, true); !result.Success {
			logger.Warn().Str("device", member).Msg("wipefs failed, continuing removal")
		}
	}

	if mdName != "" {
		// Succeeds even when the device is already gone.
		seq.exec(ctx, fmt.Sprintf("mdadm --remove /dev/%s", mdName), true)
	}

	if err := o.meta.Remove(guid); err != nil {
		o.registry.Complete(guid, types.StateFailed, err.Error())
		return "", err
	}

	o.refreshState(ctx)
	o.registry.Complete(guid, types.StateRemoved, "")
	o.publish(events.EventPoolRemoved, guid, fmt.Sprintf("pool '%s' removed", record.Label))
	return fmt.Sprintf("pool '%s' removed", record.Label), nil
}

// KillResult is the per-pid outcome of KillProcesses.
type KillResult struct {
	PID     int    `json:"pid"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// KillProcesses force-kills the given pids, one command per pid.
func (o *Operator) KillProcesses(ctx context.Context, pids []int) []KillResult {
	results := make([]KillResult, 0, len(pids))
	for _, pid := range pids {
		result := o.runner.Run(ctx, fmt.Sprintf("kill -9 %d", pid), true)
		kr := KillResult{PID: pid, Success: result.Success}
		if !result.Success {
			kr.Message = result.Output
		}
		results = append(results, kr)
	}
	return results
}

// freeMdName picks the lowest mdN not present in /proc/mdstat.
func (o *Operator) freeMdName(ctx context.Context) (string, error) {
	stat := o.md.Stat(ctx)
	used := make(map[string]bool, len(stat.Arrays))
	for _, a := range stat.Arrays {
		used[a.Name] = true
	}
	for n := 0; n < 1024; n++ {
		name := fmt.Sprintf("md%d", n)
		if !used[name] {
			return name, nil
		}
	}
	return "", fmt.Errorf("no free md device number")
}

// memberPaths resolves the record's serials to device paths via the drive
// cache, skipping disconnected members.
func (o *Operator) memberPaths(record *types.PoolRecord) []string {
	paths := make([]string, 0, len(record.DriveSerials))
	for _, serial := range record.DriveSerials {
		if d := o.drives.Find(serial); d != nil {
			paths = append(paths, d.DevicePath())
		}
	}
	return paths
}

// poolMountedAt returns another pool record holding the mount path, if any.
func (o *Operator) poolMountedAt(mountPath, excludeGUID string) *types.PoolRecord {
	records, err := o.meta.All()
	if err != nil {
		return nil
	}
	for _, r := range records {
		if r.PoolGroupGUID != excludeGUID && r.IsMounted && r.LastMountPath == mountPath {
			return r
		}
	}
	return nil
}

// refreshState invalidates cached kernel views after a mutating sequence.
// The drive refresh completes before the operation reports success.
func (o *Operator) refreshState(ctx context.Context) {
	o.md.Invalidate()
	o.mounts.Invalidate()
	if _, err := o.drives.Refresh(ctx); err != nil {
		o.logger.Warn().Err(err).Msg("Drive refresh after operation failed")
	}
}

// waitVisible blocks until the inventory can serve the pool detail, so a
// client GET issued right after completion observes consistent state.
func (o *Operator) waitVisible(ctx context.Context, guid string) {
	for i := 0; i < visibilityRetries; i++ {
		if _, err := o.inv.ByGUID(ctx, guid); err == nil {
			return
		}
		select {
		case <-time.After(visibilityDelay):
		case <-ctx.Done():
			return
		}
	}
	o.logger.Warn().Str("pool_guid", guid).Msg("Pool detail not visible after creation")
}

func (o *Operator) publish(eventType events.EventType, guid, message string) {
	if o.broker == nil {
		return
	}
	o.broker.Publish(&events.Event{
		Type:     eventType,
		PoolGUID: guid,
		Message:  message,
	})
}
