/*
Package log provides the agent's structured logging on top of zerolog.

The root logger is built once by Setup from configuration and stamps
every line with the service name. Components obtain child loggers via
WithComponent; a per-component level override map lets one subsystem run
at debug (say, the mdstat parser on a misbehaving host) without raising
the global level. Op builds a logger scoped to one pool lifecycle
operation, carrying the pool GUID and operation kind on every line.

Setup rejects unknown level names instead of falling back, so config
typos surface at startup. Before Setup runs, the root logger is a no-op,
which keeps unit tests quiet.

	if err := log.Setup(log.Options{Level: "info", JSON: true}); err != nil {
		return err
	}
	mdLog := log.WithComponent("mdstat")
	opLog := log.Op("pool", "create", guid)
*/
package log
