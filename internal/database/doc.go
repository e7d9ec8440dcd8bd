// Package database provides the PostgreSQL connection pool used by the
// trade archiver.
package database
