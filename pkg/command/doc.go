/*
Package command spawns the external binaries the agent drives (mdadm,
mkfs.ext4, mount, umount, lsblk, wipefs, lsof, kill).

The runner always waits for the child to exit, merges stdout and stderr,
and sanitises the capture: ANSI CSI/OSC sequences, carriage-return
progress redraws and char+backspace pairs are removed so transcripts stay
readable. Mutating commands are prefixed with the configured privilege
elevation command.

A non-zero exit is not a Go error; it comes back as a CommandResult with
Success=false and the captured output, because callers routinely treat
specific failures (not mounted, already stopped) as acceptable.
*/
package command
