/*
Package mdstat parses /proc/mdstat into structured array records.

The recogniser handles the personalities line, per-array blocks (header,
size line with the [active/total] counts and [UU_] status bitmap, optional
resync/recovery progress line) and the trailing unused-devices line. It
tolerates extra whitespace and unknown lines; an array whose header cannot
be parsed is emitted with an empty state rather than dropped.

Reads go through the TTL file cache. When /proc/mdstat cannot be read
directly the reader falls back to `cat /proc/mdstat` before degrading to
an empty snapshot.
*/
package mdstat
