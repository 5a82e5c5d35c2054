package pool

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Process is one process holding a mountpoint open, from lsof.
type Process struct {
	Command string `json:"command"`
	PID     int    `json:"pid"`
}

func (p Process) String() string {
	return fmt.Sprintf("%s(%d)", p.Command, p.PID)
}

// parseLsof reads `lsof +f -- <path>` output into a deduplicated process
// list. The header row is skipped; malformed rows are ignored.
func parseLsof(output string) []Process {
	var procs []Process
	seen := make(map[int]bool)

	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] == "COMMAND" {
			continue
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil || seen[pid] {
			continue
		}
		seen[pid] = true
		procs = append(procs, Process{Command: fields[0], PID: pid})
	}
	return procs
}

// processList formats processes as "cmd(pid), cmd(pid)".
func processList(procs []Process) string {
	parts := make([]string, len(procs))
	for i, p := range procs {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}

// processesUsing lists processes holding the mountpoint open. lsof exits
// non-zero when nothing matches, which is treated as an empty list.
func (o *Operator) processesUsing(ctx context.Context, mountPath string) []Process {
	result := o.runner.Run(ctx, "lsof +f -- "+mountPath, false)
	if !result.Success {
		return nil
	}
	return parseLsof(result.Output)
}
