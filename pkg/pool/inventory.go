package pool

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aundhe1m/backy-agent/pkg/drives"
	"github.com/aundhe1m/backy-agent/pkg/log"
	"github.com/aundhe1m/backy-agent/pkg/mdstat"
	"github.com/aundhe1m/backy-agent/pkg/metadata"
	"github.com/aundhe1m/backy-agent/pkg/mounts"
	"github.com/aundhe1m/backy-agent/pkg/types"
)

// SummaryDrive is one drive in a pool summary.
type SummaryDrive struct {
	Serial    string `json:"serial"`
	Label     string `json:"label,omitempty"`
	Connected bool   `json:"connected"`
}

// Summary is one pool in the list view.
type Summary struct {
	PoolGroupGUID string           `json:"poolGroupGuid,omitempty"`
	Label         string           `json:"label,omitempty"`
	MdDeviceName  string           `json:"mdDeviceName"`
	MountPath     string           `json:"mountPath,omitempty"`
	Status        types.PoolStatus `json:"status"`
	Drives        []SummaryDrive   `json:"drives"`
}

// DetailDrive is one drive in a pool detail view.
type DetailDrive struct {
	Serial string                `json:"serial"`
	Label  string                `json:"label,omitempty"`
	Status types.DriveSlotStatus `json:"status"`
}

// Detail is the composed per-pool view.
type Detail struct {
	PoolGroupGUID      string           `json:"poolGroupGuid"`
	Label              string           `json:"label"`
	Status             types.PoolStatus `json:"poolStatus"`
	MdDeviceName       string           `json:"mdDeviceName,omitempty"`
	MountPath          string           `json:"mountPath,omitempty"`
	IsMounted          bool             `json:"isMounted"`
	SizeBytes          int64            `json:"size"`
	UsedBytes          int64            `json:"used"`
	AvailableBytes     int64            `json:"available"`
	UsePercent         string           `json:"usePercent"`
	Drives             []DetailDrive    `json:"drives"`
	ResyncPercentage   *float64         `json:"resyncPercentage,omitempty"`
	ResyncTimeEstimate *float64         `json:"resyncTimeEstimate,omitempty"`
}

// Inventory is the read-side composition over mdstat, metadata, the drive
// cache and the mount table. Read errors degrade to partial views rather
// than failing the request.
type Inventory struct {
	md     *mdstat.Reader
	meta   *metadata.Store
	drives *drives.Cache
	mounts *mounts.Reader
	logger zerolog.Logger
}

// NewInventory creates the read-side view composer.
func NewInventory(md *mdstat.Reader, meta *metadata.Store, driveCache *drives.Cache, mountReader *mounts.Reader) *Inventory {
	return &Inventory{
		md:     md,
		meta:   meta,
		drives: driveCache,
		mounts: mountReader,
		logger: log.WithComponent("inventory"),
	}
}

// ListPools returns a summary for every md array, joined with metadata
// where a record exists. Metadata drives missing from the live array are
// appended as disconnected.
func (i *Inventory) ListPools(ctx context.Context) []Summary {
	stat := i.md.Stat(ctx)
	summaries := make([]Summary, 0, len(stat.Arrays))

	for _, array := range stat.Arrays {
		summary := Summary{
			MdDeviceName: array.Name,
			Status:       derivePoolStatus(array),
			MountPath:    i.mounts.MountPointOf("/dev/" + array.Name),
			Drives:       []SummaryDrive{},
		}

		record, err := i.meta.ByMdName(array.Name)
		if err == nil {
			summary.PoolGroupGUID = record.PoolGroupGUID
			summary.Label = record.Label
			if summary.MountPath == "" {
				summary.MountPath = record.LastMountPath
			}

			connected := i.connectedSerials(array)
			for _, serial := range record.DriveSerials {
				summary.Drives = append(summary.Drives, SummaryDrive{
					Serial:    serial,
					Label:     record.DriveLabels[serial],
					Connected: connected[serial],
				})
			}
		} else {
			// Array with no metadata: surface what the kernel knows.
			for _, dev := range array.Devices {
				serial := i.serialOfDevice(dev.Name)
				summary.Drives = append(summary.Drives, SummaryDrive{
					Serial:    serial,
					Connected: serial != "",
				})
			}
		}

		summaries = append(summaries, summary)
	}

	return summaries
}

// ByGUID composes the full pool detail for a metadata record.
func (i *Inventory) ByGUID(ctx context.Context, guid string) (*Detail, error) {
	record, err := i.meta.ByGUID(guid)
	if err != nil {
		return nil, err
	}
	return i.compose(ctx, record), nil
}

// ByMdName composes the detail for the pool holding the given md device.
func (i *Inventory) ByMdName(ctx context.Context, name string) (*Detail, error) {
	record, err := i.meta.ByMdName(name)
	if err != nil {
		return nil, err
	}
	return i.compose(ctx, record), nil
}

func (i *Inventory) compose(ctx context.Context, record *types.PoolRecord) *Detail {
	detail := &Detail{
		PoolGroupGUID: record.PoolGroupGUID,
		Label:         record.Label,
		MdDeviceName:  record.LastMdDeviceName,
		MountPath:     record.LastMountPath,
		Status:        types.PoolStatusInactive,
		UsePercent:    "0%",
		Drives:        []DetailDrive{},
	}

	var array *types.MdArray
	if record.LastMdDeviceName != "" {
		array = i.md.ArrayByName(ctx, record.LastMdDeviceName)
	}

	if array != nil {
		detail.Status = derivePoolStatus(array)
		if array.Resync != nil {
			pct := array.Resync.Percentage
			eta := array.Resync.FinishMinutes
			detail.ResyncPercentage = &pct
			detail.ResyncTimeEstimate = &eta
		}

		if mountPoint := i.mounts.MountPointOf("/dev/" + array.Name); mountPoint != "" {
			detail.MountPath = mountPoint
			detail.IsMounted = true
			usage := i.mounts.Usage(mountPoint)
			detail.SizeBytes = usage.SizeBytes
			detail.UsedBytes = usage.UsedBytes
			detail.AvailableBytes = usage.AvailableBytes
			detail.UsePercent = usage.UsePercent
		}
	}

	statusBySerial := i.slotStatuses(array)
	seen := make(map[string]bool)

	// The ordered component list first, then metadata-known serials the
	// array no longer carries: disconnected when the drive is absent,
	// unknown when it is connected.
	if array != nil {
		for _, dev := range array.Devices {
			serial := i.serialOfDevice(dev.Name)
			if serial == "" || !record.HasSerial(serial) {
				continue
			}
			seen[serial] = true
			detail.Drives = append(detail.Drives, DetailDrive{
				Serial: serial,
				Label:  record.DriveLabels[serial],
				Status: statusBySerial[serial],
			})
		}
	}
	for _, serial := range record.DriveSerials {
		if seen[serial] {
			continue
		}
		status := types.DriveDisconnected
		if i.drives.Find(serial) != nil {
			// Connected but not part of the running array.
			status = types.DriveUnknown
		}
		detail.Drives = append(detail.Drives, DetailDrive{
			Serial: serial,
			Label:  record.DriveLabels[serial],
			Status: status,
		})
	}

	return detail
}

// slotStatuses maps component serials to their per-slot status, combining
// the status bitmap with faulty/spare markers from the device list.
func (i *Inventory) slotStatuses(array *types.MdArray) map[string]types.DriveSlotStatus {
	out := make(map[string]types.DriveSlotStatus)
	if array == nil {
		return out
	}
	for _, dev := range array.Devices {
		serial := i.serialOfDevice(dev.Name)
		if serial == "" {
			continue
		}
		switch {
		case dev.Faulty:
			out[serial] = types.DriveFailed
		case dev.Spare:
			out[serial] = types.DriveSpare
		case dev.Role >= 0 && dev.Role < len(array.StatusChars):
			out[serial] = types.SlotStatusFromChar(array.StatusChars[dev.Role])
		default:
			out[serial] = types.DriveUnknown
		}
	}
	return out
}

// connectedSerials reports which serials back the array's live components.
func (i *Inventory) connectedSerials(array *types.MdArray) map[string]bool {
	out := make(map[string]bool)
	for _, dev := range array.Devices {
		if serial := i.serialOfDevice(dev.Name); serial != "" {
			out[serial] = true
		}
	}
	return out
}

// serialOfDevice resolves a kernel device name (sdb) to its drive serial
// through the drive cache.
func (i *Inventory) serialOfDevice(name string) string {
	for _, d := range i.drives.Get() {
		if d.Name == name {
			return d.Serial
		}
	}
	return ""
}

// derivePoolStatus maps live array state onto the pool health taxonomy.
func derivePoolStatus(array *types.MdArray) types.PoolStatus {
	if array == nil || !array.IsActive {
		return types.PoolStatusInactive
	}
	if array.Resync != nil {
		switch array.Resync.Action {
		case "recovery", "reshape":
			return types.PoolStatusRecovering
		default:
			return types.PoolStatusResync
		}
	}
	if array.TotalDevices > 0 && array.ActiveDevices == 0 {
		return types.PoolStatusFailed
	}
	if array.FailedDevices() > 0 {
		return types.PoolStatusDegraded
	}
	return types.PoolStatusActive
}
