/*
Package events fans agent events (pool lifecycle, drive refreshes) out to
in-process subscribers.

Subscriptions can be narrowed to specific event types or to one pool
GUID. Delivery never blocks a publisher: a subscriber that stops draining
loses events and its drop count records how many. The broker also keeps a
small ring of recent events for diagnostics, and the log sink subscribes
at startup so every event lands in the structured log.
*/
package events
