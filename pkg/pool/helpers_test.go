package pool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aundhe1m/backy-agent/pkg/drives"
	"github.com/aundhe1m/backy-agent/pkg/fsreader"
	"github.com/aundhe1m/backy-agent/pkg/mdstat"
	"github.com/aundhe1m/backy-agent/pkg/metadata"
	"github.com/aundhe1m/backy-agent/pkg/mounts"
	"github.com/aundhe1m/backy-agent/pkg/operations"
	"github.com/aundhe1m/backy-agent/pkg/types"
)

const emptyMdstat = "Personalities : [raid1]\nunused devices: <none>\n"

// twoDriveLsblk has serials S1 and S2 on sdb and sdc.
const twoDriveLsblk = `{
  "blockdevices": [
    {"name":"sdb","path":"/dev/sdb","serial":"S1","id-link":"ata-WDC_S1","size":1000204886016,"type":"disk"},
    {"name":"sdc","path":"/dev/sdc","serial":"S2","id-link":"ata-WDC_S2","size":1000204886016,"type":"disk"}
  ]
}`

// twoDriveLsblkWithMd shows the same drives as members of an md array.
func lsblkWithMd(mdName string) string {
	return `{
  "blockdevices": [
    {"name":"sdb","path":"/dev/sdb","serial":"S1","id-link":"ata-WDC_S1","size":1000204886016,"type":"disk",
     "children":[{"name":"` + mdName + `","path":"/dev/` + mdName + `","size":1000069595136,"type":"raid1"}]},
    {"name":"sdc","path":"/dev/sdc","serial":"S2","id-link":"ata-WDC_S2","size":1000204886016,"type":"disk",
     "children":[{"name":"` + mdName + `","path":"/dev/` + mdName + `","size":1000069595136,"type":"raid1"}]}
  ]
}`
}

func activeMdstat(mdName string) string {
	return "Personalities : [raid1]\n" +
		mdName + " : active raid1 sdb[0] sdc[1]\n" +
		"      976630464 blocks super 1.2 [2/2] [UU]\n" +
		"\nunused devices: <none>\n"
}

// scriptRunner is a scripted command.Runner. The handler inspects the
// command and returns a result, or nil for a default empty success. lsblk
// is answered from the lsblk field unless the handler overrides it.
type scriptRunner struct {
	mu      sync.Mutex
	calls   []string
	lsblk   string
	handler func(cmd string) *types.CommandResult
}

func (r *scriptRunner) Run(ctx context.Context, cmd string, elevate bool) types.CommandResult {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	handler := r.handler
	lsblk := r.lsblk
	r.mu.Unlock()

	if handler != nil {
		if res := handler(cmd); res != nil {
			res.Command = cmd
			return *res
		}
	}
	if strings.HasPrefix(cmd, "lsblk") {
		return types.CommandResult{Command: cmd, Success: true, Output: lsblk}
	}
	return types.CommandResult{Command: cmd, Success: true}
}

func (r *scriptRunner) called(prefix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (r *scriptRunner) callLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// env wires real components around a scripted runner and a fake /proc.
type env struct {
	t        *testing.T
	procDir  string
	runner   *scriptRunner
	fs       *fsreader.FSReader
	meta     *metadata.Store
	cache    *drives.Cache
	md       *mdstat.Reader
	mounts   *mounts.Reader
	registry *operations.Registry
	inv      *Inventory
	op       *Operator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	procDir := filepath.Join(dir, "proc")
	require.NoError(t, os.MkdirAll(procDir, 0755))

	e := &env{
		t:       t,
		procDir: procDir,
		runner:  &scriptRunner{lsblk: twoDriveLsblk},
	}
	e.setMdstat(emptyMdstat)
	e.setMounts("")

	e.fs = fsreader.New(time.Minute, fsreader.WithProcRoot(procDir))
	e.meta = metadata.NewStore(filepath.Join(dir, "pool-metadata.json"))
	e.cache = drives.NewCache(e.runner, nil, time.Minute, nil)
	e.md = mdstat.NewReader(e.fs, e.runner, e.meta)
	e.mounts = mounts.NewReader(e.fs)
	e.registry = operations.NewRegistry(time.Hour, time.Hour)
	e.inv = NewInventory(e.md, e.meta, e.cache, e.mounts)
	e.op = NewOperator(e.runner, e.cache, e.md, e.mounts, e.meta, e.registry, e.inv, nil)

	_, err := e.cache.Refresh(context.Background())
	require.NoError(t, err)
	return e
}

func (e *env) setMdstat(content string) {
	e.t.Helper()
	require.NoError(e.t, os.WriteFile(filepath.Join(e.procDir, "mdstat"), []byte(content), 0644))
	if e.fs != nil {
		e.fs.Invalidate(e.fs.ProcPath("mdstat"))
	}
}

func (e *env) setMounts(content string) {
	e.t.Helper()
	require.NoError(e.t, os.WriteFile(filepath.Join(e.procDir, "mounts"), []byte(content), 0644))
	if e.fs != nil {
		e.fs.Invalidate(e.fs.ProcPath("mounts"))
	}
}

// waitState polls the registry until the operation leaves mutating states.
func (e *env) waitState(guid string) types.OperationState {
	e.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if op, ok := e.registry.Get(guid); ok && !op.State.IsMutating() {
			return op.State
		}
		time.Sleep(10 * time.Millisecond)
	}
	e.t.Fatal("operation did not complete")
	return ""
}
