package mounts

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/aundhe1m/backy-agent/pkg/fsreader"
	"github.com/aundhe1m/backy-agent/pkg/log"
	"github.com/aundhe1m/backy-agent/pkg/types"
)

// statfs is swapped out by tests.
var statfs = unix.Statfs

// Reader parses /proc/mounts and reports filesystem usage.
type Reader struct {
	fs     fsreader.Reader
	logger zerolog.Logger
}

// NewReader creates a mount table reader.
func NewReader(fs fsreader.Reader) *Reader {
	return &Reader{
		fs:     fs,
		logger: log.WithComponent("mounts"),
	}
}

// Mounts returns the current mount table.
func (r *Reader) Mounts() []types.MountEntry {
	content := r.fs.ReadProc("mounts")
	if content == "" {
		return nil
	}

	var entries []types.MountEntry
	for _, line := range strings.Split(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		entries = append(entries, types.MountEntry{
			Device:     fields[0],
			MountPoint: strings.ReplaceAll(fields[1], `\040`, " "),
			FSType:     fields[2],
			Options:    fields[3],
		})
	}
	return entries
}

// MountPointOf returns the mountpoint of a device, or "" when unmounted.
func (r *Reader) MountPointOf(device string) string {
	for _, m := range r.Mounts() {
		if m.Device == device {
			return m.MountPoint
		}
	}
	return ""
}

// DeviceAt returns the device mounted at the given path, or "".
func (r *Reader) DeviceAt(mountPoint string) string {
	for _, m := range r.Mounts() {
		if m.MountPoint == mountPoint {
			return m.Device
		}
	}
	return ""
}

// Invalidate drops the cached mount table so the next read hits the
// kernel. Called after mutating operations.
func (r *Reader) Invalidate() {
	r.fs.Invalidate(r.fs.ProcPath("mounts"))
}

// Usage reports size, used and available bytes for a mountpoint, with the
// use percentage formatted to two fractional digits. A mountpoint that is
// not ready degrades to zeros and "0%".
func (r *Reader) Usage(mountPoint string) types.FilesystemUsage {
	var st unix.Statfs_t
	if err := statfs(mountPoint, &st); err != nil {
		r.logger.Warn().Str("mountpoint", mountPoint).Err(err).Msg("statfs failed")
		return types.FilesystemUsage{UsePercent: "0%"}
	}

	bsize := int64(st.Bsize)
	size := int64(st.Blocks) * bsize
	available := int64(st.Bavail) * bsize
	used := size - int64(st.Bfree)*bsize

	percent := "0%"
	if size > 0 {
		percent = fmt.Sprintf("%.2f%%", float64(used)/float64(size)*100)
	}

	return types.FilesystemUsage{
		SizeBytes:      size,
		UsedBytes:      used,
		AvailableBytes: available,
		UsePercent:     percent,
	}
}
