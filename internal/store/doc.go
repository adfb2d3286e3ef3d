// Package store defines the persistence interfaces and shared errors for
// task records. Concrete implementations live under internal/platform
// (PostgreSQL) and in this package (in-memory, used for tests and local
// development).
package store
