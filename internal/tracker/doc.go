// Package tracker records background-job lifecycle transitions as task
// records. It exposes the four hook entry points the job-queue
// integration invokes (enqueue, start, finish, skip) plus a progress
// reporting path, derives the record status from each, and raises a
// change event after every successful write. Tracking is strictly
// best-effort and side-channel to job execution: nothing here may cause
// a job to fail or retry.
package tracker
