package mdstat

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/aundhe1m/backy-agent/pkg/types"
)

var (
	headerPattern = regexp.MustCompile(`^(md[^\s:]*)\s*:\s*(.*)$`)
	devicePattern = regexp.MustCompile(`^(.+?)\[(\d+)\]((?:\([A-Z]\))*)$`)
	countsPattern = regexp.MustCompile(`\[(\d+)/(\d+)\]`)
	slotsPattern  = regexp.MustCompile(`\[([U_S]+)\]`)
	superPattern  = regexp.MustCompile(`super\s+(\S+)`)
	resyncPattern = regexp.MustCompile(`(resync|recovery|check|reshape)\s*=\s*([0-9.]+)%`)
	finishPattern = regexp.MustCompile(`finish=([0-9.]+)min`)
	speedPattern  = regexp.MustCompile(`speed=(\S+)`)
	blocksPattern = regexp.MustCompile(`^(\d+)\s+blocks`)
	persPattern   = regexp.MustCompile(`\[([^\]]+)\]`)
)

// Parse reads the line-oriented /proc/mdstat format into a structured
// snapshot. The recogniser tolerates extra whitespace and unknown lines;
// an array whose header cannot be parsed is still emitted with an empty
// state rather than dropped.
func Parse(content string) *types.MdStat {
	stat := &types.MdStat{}

	var current *types.MdArray
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimRight(raw, " \t")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "Personalities"):
			for _, m := range persPattern.FindAllStringSubmatch(trimmed, -1) {
				stat.Personalities = append(stat.Personalities, m[1])
			}

		case strings.HasPrefix(trimmed, "unused devices"):
			_, rest, ok := strings.Cut(trimmed, ":")
			if !ok {
				continue
			}
			rest = strings.TrimSpace(rest)
			if rest != "" && rest != "<none>" {
				stat.UnusedDevices = strings.Fields(rest)
			}
			current = nil

		case strings.HasPrefix(trimmed, "md") && headerPattern.MatchString(trimmed):
			current = parseArrayHeader(trimmed)
			stat.Arrays = append(stat.Arrays, current)

		case current != nil:
			parseDetailLine(current, trimmed)
		}
	}

	return stat
}

// parseArrayHeader handles lines of the form
// "md0 : active raid1 sdb[1] sda[0]".
func parseArrayHeader(line string) *types.MdArray {
	m := headerPattern.FindStringSubmatch(line)
	array := &types.MdArray{Name: m[1]}

	tokens := strings.Fields(m[2])
	if len(tokens) == 0 {
		return array
	}

	array.State = tokens[0]
	array.IsActive = tokens[0] == "active"
	i := 1

	// States like "active (auto-read-only)" carry a parenthesised suffix.
	for i < len(tokens) && strings.HasPrefix(tokens[i], "(") && strings.HasSuffix(tokens[i], ")") {
		array.State += " " + tokens[i]
		i++
	}

	// The raid level is absent on inactive arrays.
	if i < len(tokens) && !devicePattern.MatchString(tokens[i]) {
		array.Level = tokens[i]
		i++
	}

	for ; i < len(tokens); i++ {
		dm := devicePattern.FindStringSubmatch(tokens[i])
		if dm == nil {
			continue
		}
		role, _ := strconv.Atoi(dm[2])
		dev := types.MdDevice{
			Name: dm[1],
			Role: role,
		}
		for _, flag := range splitFlags(dm[3]) {
			switch flag {
			case "F":
				dev.Faulty = true
			case "S":
				dev.Spare = true
			}
		}
		array.Devices = append(array.Devices, dev)
	}

	sort.SliceStable(array.Devices, func(a, b int) bool {
		return array.Devices[a].Role < array.Devices[b].Role
	})

	return array
}

// parseDetailLine handles the size and resync lines following a header.
func parseDetailLine(array *types.MdArray, line string) {
	if m := blocksPattern.FindStringSubmatch(line); m != nil {
		blocks, _ := strconv.ParseInt(m[1], 10, 64)
		array.Blocks = blocks
		array.SizeBytes = blocks * 1024

		if sm := superPattern.FindStringSubmatch(line); sm != nil {
			array.Metadata = sm[1]
		}
		if cm := countsPattern.FindStringSubmatch(line); cm != nil {
			array.ActiveDevices, _ = strconv.Atoi(cm[1])
			array.TotalDevices, _ = strconv.Atoi(cm[2])
		}
		if sm := slotsPattern.FindStringSubmatch(line); sm != nil {
			array.StatusChars = sm[1]
		}
		return
	}

	if m := resyncPattern.FindStringSubmatch(line); m != nil {
		progress := &types.ResyncProgress{Action: m[1]}
		progress.Percentage, _ = strconv.ParseFloat(m[2], 64)
		if fm := finishPattern.FindStringSubmatch(line); fm != nil {
			progress.FinishMinutes, _ = strconv.ParseFloat(fm[1], 64)
		}
		if sm := speedPattern.FindStringSubmatch(line); sm != nil {
			progress.Speed = sm[1]
		}
		array.Resync = progress
	}
}

func splitFlags(s string) []string {
	var flags []string
	for _, part := range strings.Split(s, ")") {
		part = strings.TrimPrefix(part, "(")
		if part != "" {
			flags = append(flags, part)
		}
	}
	return flags
}
