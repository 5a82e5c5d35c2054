package fsreader

import (
	"os"
	"path/filepath"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/aundhe1m/backy-agent/pkg/log"
)

// Reader provides cached reads of files under /proc and /sys. Missing or
// unreadable files degrade to empty values with a warning log; they never
// fail the caller.
type Reader interface {
	ReadFile(path string, cacheable bool) string
	ReadProc(name string) string
	ReadSys(relPath string) string
	ReadSysBlockProps(device string, props ...string) map[string]string
	Exists(path string) bool
	ListDir(path string) []string
	Invalidate(path string)
	ProcPath(name string) string
}

// FSReader is the host filesystem implementation of Reader.
type FSReader struct {
	cache    *gocache.Cache
	logger   zerolog.Logger
	procRoot string
	sysRoot  string
}

// Option configures an FSReader.
type Option func(*FSReader)

// WithProcRoot overrides the /proc root, used by tests.
func WithProcRoot(root string) Option {
	return func(r *FSReader) { r.procRoot = root }
}

// WithSysRoot overrides the /sys root, used by tests.
func WithSysRoot(root string) Option {
	return func(r *FSReader) { r.sysRoot = root }
}

// New creates an FSReader whose cacheable reads live for ttl.
func New(ttl time.Duration, opts ...Option) *FSReader {
	if ttl <= 0 {
		ttl = time.Second
	}
	r := &FSReader{
		cache:    gocache.New(ttl, 2*ttl),
		logger:   log.WithComponent("fsreader"),
		procRoot: "/proc",
		sysRoot:  "/sys",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadFile returns the file content, trimmed of a trailing newline. When
// cacheable, the value is served from and stored in the TTL cache keyed by
// absolute path.
func (r *FSReader) ReadFile(path string, cacheable bool) string {
	if cacheable {
		if v, ok := r.cache.Get(path); ok {
			return v.(string)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		r.logger.Warn().Str("path", path).Err(err).Msg("File read failed")
		return ""
	}

	content := string(data)
	if len(content) > 0 && content[len(content)-1] == '\n' {
		content = content[:len(content)-1]
	}

	if cacheable {
		r.cache.SetDefault(path, content)
	}
	return content
}

// ReadProc reads a file under /proc, cached.
func (r *FSReader) ReadProc(name string) string {
	return r.ReadFile(filepath.Join(r.procRoot, name), true)
}

// ReadSys reads a file under /sys, cached.
func (r *FSReader) ReadSys(relPath string) string {
	return r.ReadFile(filepath.Join(r.sysRoot, relPath), true)
}

// ReadSysBlockProps reads properties of a block device from
// /sys/block/<device>/<prop>, falling back to <device>/device/<prop> when
// the top-level attribute is absent.
func (r *FSReader) ReadSysBlockProps(device string, props ...string) map[string]string {
	out := make(map[string]string, len(props))
	for _, prop := range props {
		v := r.ReadFile(filepath.Join(r.sysRoot, "block", device, prop), true)
		if v == "" {
			v = r.ReadFile(filepath.Join(r.sysRoot, "block", device, "device", prop), true)
		}
		out[prop] = v
	}
	return out
}

// Exists reports whether the path exists.
func (r *FSReader) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ListDir returns the entry names of a directory, or nil when unreadable.
func (r *FSReader) ListDir(path string) []string {
	entries, err := os.ReadDir(path)
	if err != nil {
		r.logger.Warn().Str("path", path).Err(err).Msg("Directory list failed")
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// Invalidate drops the cached value for a path.
func (r *FSReader) Invalidate(path string) {
	r.cache.Delete(path)
}

// ProcPath returns the absolute path of a /proc entry, honoring the
// configured root. Used by callers that need to invalidate proc reads.
func (r *FSReader) ProcPath(name string) string {
	return filepath.Join(r.procRoot, name)
}
