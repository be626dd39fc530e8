// Package recorder implements the event archive writer.
//
// The recorder subscribes to configured realtime event types and appends
// each received envelope payload to the session_events table in batches,
// so a session's progress history can be reviewed after the fact.
//
// Rows are append-only; duplicate IDs are ignored on insert.
package recorder
