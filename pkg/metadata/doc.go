/*
Package metadata persists the pool records the agent must remember across
reboots.

The store is one indented JSON file. Every mutation rewrites the whole
file through a temp-file rename, so readers never observe a partial
write. A missing file is replaced by a fresh empty collection; an
unparseable one is quarantined as <name>.corrupt.<UTC timestamp> and
likewise replaced, and the agent carries on.

The file is eventually consistent with kernel state by design: the
reconciler repairs drift at startup rather than the store trying to stay
transactionally in sync with mdadm.
*/
package metadata
