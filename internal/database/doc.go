// Package database provides connection pool management for the Postgres
// event archive.
//
// A single pool holds the session_events table that the recorder appends
// to; rows are append-only (never update, only insert).
package database
