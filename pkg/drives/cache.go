package drives

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aundhe1m/backy-agent/pkg/command"
	"github.com/aundhe1m/backy-agent/pkg/events"
	"github.com/aundhe1m/backy-agent/pkg/log"
	"github.com/aundhe1m/backy-agent/pkg/metrics"
	"github.com/aundhe1m/backy-agent/pkg/types"
)

const lsblkCommand = "lsblk -J -b -o NAME,SIZE,TYPE,MOUNTPOINT,UUID,SERIAL,VENDOR,MODEL,FSTYPE,PATH,ID-LINK"

// Cache holds the latest lsblk snapshot filtered to whole disks with
// exclusions applied. Snapshot replacement is atomic from a reader's
// perspective; readers never observe a partial list.
type Cache struct {
	runner     command.Runner
	exclusions []string
	broker     *events.Broker
	interval   time.Duration
	logger     zerolog.Logger

	mu          sync.RWMutex
	snapshot    []*types.Drive
	lastRefresh time.Time

	refreshing atomic.Bool
}

// NewCache creates a drive cache. broker may be nil.
func NewCache(runner command.Runner, exclusions []string, interval time.Duration, broker *events.Broker) *Cache {
	return &Cache{
		runner:     runner,
		exclusions: exclusions,
		broker:     broker,
		interval:   interval,
		logger:     log.WithComponent("drives"),
	}
}

// Get returns the current snapshot.
func (c *Cache) Get() []*types.Drive {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// LastRefresh returns when the snapshot was last replaced.
func (c *Cache) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

// Find returns the drive with the given serial, or nil.
func (c *Cache) Find(serial string) *types.Drive {
	for _, d := range c.Get() {
		if d.Serial == serial {
			return d
		}
	}
	return nil
}

// SerialToMd maps each drive serial to the md array name found among its
// children, for drives that are md members.
func (c *Cache) SerialToMd() map[string]string {
	out := make(map[string]string)
	for _, d := range c.Get() {
		if md := mdChild(d); md != "" && d.Serial != "" {
			out[d.Serial] = md
		}
	}
	return out
}

func mdChild(d *types.Drive) string {
	for _, child := range d.Children {
		if len(child.Name) >= 2 && child.Name[:2] == "md" {
			return child.Name
		}
		if md := mdChild(child); md != "" {
			return md
		}
	}
	return ""
}

// Refresh replaces the snapshot from a fresh lsblk run. The refresh gate is
// non-blocking: when another refresh is already running, Refresh returns
// false immediately without waiting.
func (c *Cache) Refresh(ctx context.Context) (bool, error) {
	if !c.refreshing.CompareAndSwap(false, true) {
		return false, nil
	}
	defer c.refreshing.Store(false)

	result := c.runner.Run(ctx, lsblkCommand, false)
	if !result.Success {
		metrics.DriveRefreshesTotal.WithLabelValues("failure").Inc()
		return true, fmt.Errorf("lsblk failed (exit %d): %s", result.ExitCode, result.Output)
	}

	var parsed types.LsblkOutput
	if err := json.Unmarshal([]byte(result.Output), &parsed); err != nil {
		metrics.DriveRefreshesTotal.WithLabelValues("failure").Inc()
		return true, fmt.Errorf("failed to parse lsblk output: %w", err)
	}

	filtered := make([]*types.Drive, 0, len(parsed.BlockDevices))
	for _, d := range parsed.BlockDevices {
		if d.Type != "disk" {
			continue
		}
		if Excluded(d, c.exclusions) {
			continue
		}
		filtered = append(filtered, d)
	}

	c.mu.Lock()
	c.snapshot = filtered
	c.lastRefresh = time.Now()
	c.mu.Unlock()

	metrics.DriveRefreshesTotal.WithLabelValues("success").Inc()
	metrics.DrivesTotal.Set(float64(len(filtered)))

	if c.broker != nil {
		c.broker.Publish(&events.Event{
			Type:    events.EventDriveRefresh,
			Message: fmt.Sprintf("drive snapshot refreshed: %d drives", len(filtered)),
		})
	}

	c.logger.Debug().Int("drives", len(filtered)).Msg("Drive snapshot refreshed")
	return true, nil
}

// Run refreshes the snapshot on the configured interval until ctx is
// cancelled. Failed cycles are logged and the loop continues.
func (c *Cache) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info().Dur("interval", c.interval).Msg("Drive refresh loop started")

	for {
		select {
		case <-ticker.C:
			if _, err := c.Refresh(ctx); err != nil {
				c.logger.Error().Err(err).Msg("Drive refresh failed")
			}
		case <-ctx.Done():
			c.logger.Info().Msg("Drive refresh loop stopped")
			return nil
		}
	}
}
