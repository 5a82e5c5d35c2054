/*
Package pool implements the pool lifecycle core: the operator that runs
mutating sequences, the reconciler that aligns metadata with kernel state,
and the read-side inventory composition.

# Architecture

	┌────────────────────── POOL CORE ──────────────────────┐
	│                                                        │
	│  ┌──────────────┐   mdadm/mkfs/mount   ┌────────────┐  │
	│  │   Operator   │─────────────────────▶│   kernel   │  │
	│  │  create      │                      │  md state  │  │
	│  │  mount       │   transcripts        └────────────┘  │
	│  │  unmount     │──────▶ OperationRegistry             │
	│  │  remove      │                                      │
	│  └──────┬───────┘                                      │
	│         │ persists                                     │
	│  ┌──────▼───────┐        ┌──────────────┐              │
	│  │ MetadataStore│◀───────│  Reconciler  │              │
	│  └──────────────┘ repairs└──────────────┘              │
	│                                                        │
	│  ┌──────────────────────────────────────────────┐      │
	│  │ Inventory: mdstat ⋈ metadata ⋈ drives ⋈ mounts│     │
	│  └──────────────────────────────────────────────┘      │
	└────────────────────────────────────────────────────────┘

# Operator

Each mutating sequence runs strictly in order. Every external command is
appended to the operation transcript as a "$ cmd" line followed by its
sanitised output. Steps register compensating commands (mdadm --stop,
umount) that unwind in LIFO order when a later step fails; a failed
creation persists no metadata and leaves no md array behind.

Pool creation is asynchronous: the API returns immediately with state
"creating" and clients poll the pool GUID. Mount, unmount and remove run
synchronously but are tracked in the registry all the same, so their
transcripts stay queryable.

# Reconciler

Drive serials are the stable membership identity. On startup the
reconciler maps each record's serials onto the md arrays the kernel
currently exposes, corrects stale lastMdDeviceName hints (md0 becomes
md127 after a reboot), assembles arrays whose pools should be mounted,
and optionally restores mounts. Records whose drives are absent are left
untouched; the drives may be plugged back in later.

# Inventory

The inventory joins four read models into the API's pool views. Read
failures degrade to partial views (status "unknown", zero sizes) instead
of failing the request.
*/
package pool
