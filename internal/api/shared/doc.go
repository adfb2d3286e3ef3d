// Package shared provides helpers used across HTTP and websocket
// handlers: JSON responses, context keys, and trace IDs.
package shared
