// Package domain holds the task-tracking entities: the TaskRecord, its
// status lifecycle, and the correlation bundle that opts a job into
// tracking. It is independent of storage and transport.
package domain
