// Package registry maintains the in-process map from live subscriber
// connections to the job identifiers each one watches. Entries live
// exactly as long as their connection; a crash can leave a stale entry,
// which is tolerated and cleaned up when the process restarts.
package registry
