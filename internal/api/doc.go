// Package api provides the REST client for the dashboard's analysis API.
//
// The API is an external collaborator: this package only consumes it to
// create analysis sessions and read their status; endpoint implementations
// live server-side.
//
// Key resources: sessions, session events.
package api
