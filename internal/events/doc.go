// Package events defines the task change event and the in-process
// emitter that carries it from the lifecycle tracker to the notifier.
// Delivery is synchronous and in-line with the write that produced the
// event; handler failures never roll that write back.
package events
