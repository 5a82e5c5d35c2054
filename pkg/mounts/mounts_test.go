package mounts

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fakeFS struct {
	files map[string]string
}

func (f *fakeFS) ReadFile(path string, cacheable bool) string { return f.files[path] }
func (f *fakeFS) ReadProc(name string) string                 { return f.files[f.ProcPath(name)] }
func (f *fakeFS) ReadSys(relPath string) string               { return "" }
func (f *fakeFS) ReadSysBlockProps(device string, props ...string) map[string]string {
	return map[string]string{}
}
func (f *fakeFS) Exists(path string) bool      { _, ok := f.files[path]; return ok }
func (f *fakeFS) ListDir(path string) []string { return nil }
func (f *fakeFS) Invalidate(path string)       { delete(f.files, path) }
func (f *fakeFS) ProcPath(name string) string  { return filepath.Join("/proc", name) }

const sampleMounts = `/dev/sda1 / ext4 rw,relatime 0 0
/dev/md0 /mnt/p1 ext4 rw,noatime 0 0
/dev/md127 /mnt/with\040space ext4 rw 0 0
tmpfs /run tmpfs rw,nosuid 0 0
`

func TestMountsParsing(t *testing.T) {
	r := NewReader(&fakeFS{files: map[string]string{"/proc/mounts": sampleMounts}})

	entries := r.Mounts()
	require.Len(t, entries, 4)

	assert.Equal(t, "/dev/md0", entries[1].Device)
	assert.Equal(t, "/mnt/p1", entries[1].MountPoint)
	assert.Equal(t, "ext4", entries[1].FSType)
	assert.Equal(t, "rw,noatime", entries[1].Options)

	// Escaped spaces are decoded.
	assert.Equal(t, "/mnt/with space", entries[2].MountPoint)
}

func TestMountPointOf(t *testing.T) {
	r := NewReader(&fakeFS{files: map[string]string{"/proc/mounts": sampleMounts}})

	assert.Equal(t, "/mnt/p1", r.MountPointOf("/dev/md0"))
	assert.Equal(t, "", r.MountPointOf("/dev/md9"))
}

func TestDeviceAt(t *testing.T) {
	r := NewReader(&fakeFS{files: map[string]string{"/proc/mounts": sampleMounts}})

	assert.Equal(t, "/dev/md0", r.DeviceAt("/mnt/p1"))
	assert.Equal(t, "", r.DeviceAt("/mnt/nothing"))
}

func TestMountsEmptyTable(t *testing.T) {
	r := NewReader(&fakeFS{files: map[string]string{}})

	assert.Nil(t, r.Mounts())
}

func TestUsage(t *testing.T) {
	orig := statfs
	statfs = func(path string, st *unix.Statfs_t) error {
		st.Bsize = 4096
		st.Blocks = 1000
		st.Bfree = 400
		st.Bavail = 300
		return nil
	}
	t.Cleanup(func() { statfs = orig })

	r := NewReader(&fakeFS{files: map[string]string{}})
	usage := r.Usage("/mnt/p1")

	assert.Equal(t, int64(4096000), usage.SizeBytes)
	assert.Equal(t, int64(2457600), usage.UsedBytes)
	assert.Equal(t, int64(1228800), usage.AvailableBytes)
	assert.Equal(t, "60.00%", usage.UsePercent)
}

func TestUsageNotReadyMountpoint(t *testing.T) {
	orig := statfs
	statfs = func(path string, st *unix.Statfs_t) error {
		return errors.New("no such file or directory")
	}
	t.Cleanup(func() { statfs = orig })

	r := NewReader(&fakeFS{files: map[string]string{}})
	usage := r.Usage("/mnt/gone")

	assert.Equal(t, int64(0), usage.SizeBytes)
	assert.Equal(t, int64(0), usage.UsedBytes)
	assert.Equal(t, int64(0), usage.AvailableBytes)
	assert.Equal(t, "0%", usage.UsePercent)
}
