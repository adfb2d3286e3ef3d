// Package api contains the HTTP handlers: the job-queue callback surface
// consumed by queue workers and the read-only task listing used by
// status widgets.
package api
