package events

import (
	"github.com/aundhe1m/backy-agent/pkg/log"
)

// StartLogSink subscribes to the broker and writes every event to the
// structured log. The sink drains until the broker closes its
// subscription; the returned stop function detaches it early.
func StartLogSink(b *Broker) func() {
	logger := log.WithComponent("events")
	sub := b.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for event := range sub.C {
			logger.Info().
				Str("event", string(event.Type)).
				Str("pool_guid", event.PoolGUID).
				Msg(event.Message)
		}
		if n := sub.Dropped(); n > 0 {
			logger.Warn().Uint64("dropped", n).Msg("Event log sink fell behind")
		}
	}()

	return func() {
		b.Unsubscribe(sub)
		<-done
	}
}
