/*
Package drives maintains the block-device snapshot the rest of the agent
reads from.

A background loop refreshes the snapshot from `lsblk -J -b` every refresh
interval, and every mutating pool operation triggers an extra refresh.
The snapshot is filtered to whole disks (type "disk") with configured
exclusion patterns applied; replacement is atomic, so readers never see a
partial list.

The refresh gate is non-blocking: a refresh that finds another refresh in
flight returns immediately instead of queueing, because the running
refresh will already produce a newer snapshot.

Exclusion patterns match a device path or bare name exactly, or as a
prefix when the pattern ends in '*':

	excludedDrives:
	  - /dev/sda        # the OS disk
	  - nvme*           # every NVMe device
*/
package drives
