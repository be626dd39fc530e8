package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

var emptyPayload = json.RawMessage(`{}`)

// heartbeatTimer sends a ping envelope at a fixed interval while the
// connection is up. At most one timer runs per client: Start stops any
// previous instance before arming a new one.
type heartbeatTimer struct {
	logger *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
}

func newHeartbeatTimer(logger *slog.Logger) *heartbeatTimer {
	if logger == nil {
		logger = slog.Default()
	}
	return &heartbeatTimer{logger: logger}
}

// Start arms a repeating timer that calls send with a ping envelope every
// interval.
func (h *heartbeatTimer) Start(interval time.Duration, send func(Envelope) error) {
	h.mu.Lock()
	if h.stop != nil {
		close(h.stop)
	}
	stop := make(chan struct{})
	h.stop = stop
	h.mu.Unlock()

	go h.run(interval, send, stop)
}

// Stop cancels the repeating timer. It must be called on every transition
// away from connected so no ping is written to a dead transport. Stopping a
// stopped timer is a no-op.
func (h *heartbeatTimer) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		close(h.stop)
		h.stop = nil
	}
}

func (h *heartbeatTimer) run(interval time.Duration, send func(Envelope) error, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			env := Envelope{
				Type:      EventPing,
				Data:      emptyPayload,
				Timestamp: time.Now().UTC(),
			}
			if err := send(env); err != nil {
				h.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}
