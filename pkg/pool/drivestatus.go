package pool

import (
	"context"

	"github.com/aundhe1m/backy-agent/pkg/types"
)

// DriveStatusView is the composed status of one drive: identity, mount
// state, pool membership and the processes using its mountpoint.
type DriveStatusView struct {
	Serial        string    `json:"serial"`
	Name          string    `json:"name,omitempty"`
	Path          string    `json:"path,omitempty"`
	Vendor        string    `json:"vendor,omitempty"`
	Model         string    `json:"model,omitempty"`
	Connected     bool      `json:"connected"`
	MountPoint    string    `json:"mountPoint,omitempty"`
	IsMounted     bool      `json:"isMounted"`
	PoolGroupGUID string    `json:"poolGroupGuid,omitempty"`
	PoolLabel     string    `json:"poolLabel,omitempty"`
	MdDeviceName  string    `json:"mdDeviceName,omitempty"`
	Processes     []Process `json:"processes"`
}

// DriveStatus composes the status view for a drive serial. A serial that
// is neither connected nor known to any pool record is not found.
func (o *Operator) DriveStatus(ctx context.Context, serial string) (*DriveStatusView, error) {
	drive := o.drives.Find(serial)
	record, recErr := o.meta.BySerial(serial)
	if drive == nil && recErr != nil {
		return nil, types.NotFoundf("no drive with serial %s", serial)
	}

	view := &DriveStatusView{
		Serial:    serial,
		Connected: drive != nil,
		Processes: []Process{},
	}

	if drive != nil {
		view.Name = drive.Name
		view.Path = drive.Path
		view.Vendor = drive.Vendor
		view.Model = drive.Model
		view.MountPoint = drive.MountPoint
	}

	if record != nil && recErr == nil {
		view.PoolGroupGUID = record.PoolGroupGUID
		view.PoolLabel = record.Label
		view.MdDeviceName = record.LastMdDeviceName
		if view.MountPoint == "" && record.LastMdDeviceName != "" {
			view.MountPoint = o.mounts.MountPointOf("/dev/" + record.LastMdDeviceName)
		}
	}

	view.IsMounted = view.MountPoint != ""
	if view.IsMounted {
		view.Processes = o.processesUsing(ctx, view.MountPoint)
		if view.Processes == nil {
			view.Processes = []Process{}
		}
	}

	return view, nil
}
