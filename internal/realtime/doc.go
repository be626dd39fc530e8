// Package realtime implements the realtime event client for the analysis
// dashboard.
//
// The client:
//   - Maintains a single long-lived WebSocket connection per session
//   - Sends periodic ping envelopes to keep the connection alive
//   - Reconnects after unexpected closes with a bounded retry budget
//   - Routes decoded inbound envelopes to listeners by event type
//
// The transport is injectable so the state machine is testable without a
// network.
package realtime
