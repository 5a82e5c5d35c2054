package pool

import (
	"strings"
)

// componentDevices extracts the component device paths from `mdadm --detail`
// output. Device table rows end in the device path; removed slots carry no
// path and are skipped.
func componentDevices(detail string) []string {
	var devices []string
	seen := make(map[string]bool)

	inTable := false
	for _, line := range strings.Split(detail, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "Number" && strings.Contains(line, "RaidDevice") {
			inTable = true
			continue
		}
		if !inTable {
			continue
		}
		last := fields[len(fields)-1]
		if strings.HasPrefix(last, "/dev/") && !seen[last] {
			seen[last] = true
			devices = append(devices, last)
		}
	}
	return devices
}
