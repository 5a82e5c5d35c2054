/*
Package operations tracks asynchronous pool lifecycle operations.

The registry is a concurrent map keyed by pool GUID. Per-GUID mutual
exclusion falls out of the map: beginning an operation while another one
on the same GUID is still in a mutating state fails with a conflict,
while different pools mutate in parallel. Transcripts are append-only
until completion and snapshots are copies, so readers never race writers.

A background sweeper evicts completed entries after the retention window
(default 24h), on the cleanup interval (default 1h).
*/
package operations
