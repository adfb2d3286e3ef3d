// Package notifier bridges task change events to live subscriber
// connections. It is the only consumer of the tracker's change events
// and the only writer on the outbound transport.
package notifier
