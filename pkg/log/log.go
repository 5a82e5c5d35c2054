package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// The root logger starts as a no-op so components constructed before
// Setup (and in tests) log nowhere instead of panicking or spamming.
var (
	mu        sync.RWMutex
	root      = zerolog.Nop()
	overrides map[string]zerolog.Level
)

// Options configures the process logger.
type Options struct {
	// Level is the global minimum level name (trace..error).
	Level string

	// JSON selects machine-readable output; the default is a console
	// writer for interactive use.
	JSON bool

	// Output defaults to stdout.
	Output io.Writer

	// ComponentLevels overrides the minimum level per component, e.g.
	// {"mdstat": "debug"} to trace parsing on one host without drowning
	// the rest of the log.
	ComponentLevels map[string]string
}

// Setup builds the root logger. It fails on an unknown level name rather
// than silently falling back, so a typo in the config is caught at start.
func Setup(opts Options) error {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		return fmt.Errorf("unknown log level %q: %w", opts.Level, err)
	}
	if opts.Level == "" {
		level = zerolog.InfoLevel
	}

	perComponent := make(map[string]zerolog.Level, len(opts.ComponentLevels))
	for component, name := range opts.ComponentLevels {
		l, err := zerolog.ParseLevel(name)
		if err != nil {
			return fmt.Errorf("unknown log level %q for component %q: %w", name, component, err)
		}
		perComponent[component] = l
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	mu.Lock()
	root = zerolog.New(out).Level(level).With().
		Timestamp().
		Str("service", "backy-agent").
		Logger()
	overrides = perComponent
	mu.Unlock()
	return nil
}

// Base returns the root logger for top-level messages that belong to no
// single component.
func Base() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// WithComponent returns the logger for a named component, honoring any
// per-component level override.
func WithComponent(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()

	logger := root.With().Str("component", component).Logger()
	if level, ok := overrides[component]; ok {
		logger = logger.Level(level)
	}
	return logger
}

// Op returns a logger scoped to one pool lifecycle operation: every line
// carries the pool GUID and the operation kind, so a single pool's
// create/mount/remove history can be filtered out of an aggregated log.
func Op(component, kind, poolGUID string) zerolog.Logger {
	return WithComponent(component).With().
		Str("op", kind).
		Str("pool_guid", poolGUID).
		Logger()
}
