// Package service contains application-level services. Only token
// validation lives here; user accounts and job execution belong to the
// surrounding application.
package service
