// Package postgres implements the store interfaces against PostgreSQL
// using the pgx driver in database/sql mode. The tasks table's primary
// key on job_id is what serializes concurrent upserts for one job.
package postgres
