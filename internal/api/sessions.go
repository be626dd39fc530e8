package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Session is an analysis session for a submitted piece of media.
type Session struct {
	ID        string    `json:"id"`
	MediaName string    `json:"media_name"`
	MediaType string    `json:"media_type"`
	Status    string    `json:"status"` // "queued", "analyzing", "completed", "failed"
	CreatedAt time.Time `json:"created_at"`
}

// SessionEvent is an archived realtime event for a session.
type SessionEvent struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// CreateSessionRequest describes the media to analyze.
type CreateSessionRequest struct {
	MediaName string `json:"media_name"`
	MediaType string `json:"media_type"`
}

// CreateSession submits media for analysis and returns the new session.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	body, err := c.doWithRetry(ctx, http.MethodPost, "/sessions", nil, payload)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}

	c.logger.Debug("session created",
		"session_id", session.ID,
		"media_name", session.MediaName,
	)

	return &session, nil
}

// GetSession fetches a session by ID.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	body, err := c.doWithRetry(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}

	return &session, nil
}

// ListSessionEvents returns the archived events for a session, oldest first.
func (c *Client) ListSessionEvents(ctx context.Context, id string, limit int) ([]SessionEvent, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}

	body, err := c.doWithRetry(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id)+"/events", query, nil)
	if err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}

	var out struct {
		Events []SessionEvent `json:"events"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse events: %w", err)
	}

	return out.Events, nil
}
