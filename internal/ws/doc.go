// Package ws carries the subscriber connection protocol over websockets:
// the status-watch and seen-mark endpoints, the inbound frame format,
// and the hub that the notifier pushes through.
package ws
