package realtime

import (
	"encoding/json"
	"log/slog"
	"reflect"
	"sync"
)

// Listener receives the data payload of a dispatched envelope.
type Listener func(data json.RawMessage)

// Dispatcher routes decoded envelopes to listeners registered per event
// type. Listeners for a type are invoked in registration order. The registry
// is independent of the connection lifetime, so listeners survive reconnects.
type Dispatcher struct {
	logger *slog.Logger

	mu        sync.RWMutex
	listeners map[string][]listenerEntry
}

// listenerEntry pairs a listener with its code pointer for identity-based
// removal (Go function values are not comparable).
type listenerEntry struct {
	fn  Listener
	ptr uintptr
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:    logger,
		listeners: make(map[string][]listenerEntry),
	}
}

// On appends fn to the listener list for eventType, creating the list if
// absent. The same function may be registered for multiple types
// independently.
func (d *Dispatcher) On(eventType string, fn Listener) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.listeners[eventType] = append(d.listeners[eventType], listenerEntry{
		fn:  fn,
		ptr: reflect.ValueOf(fn).Pointer(),
	})
}

// Off removes the first listener for eventType matching fn by identity.
// Removing a listener that is not registered is a no-op.
func (d *Dispatcher) Off(eventType string, fn Listener) {
	if fn == nil {
		return
	}
	ptr := reflect.ValueOf(fn).Pointer()

	d.mu.Lock()
	defer d.mu.Unlock()

	entries := d.listeners[eventType]
	for i, entry := range entries {
		if entry.ptr == ptr {
			d.listeners[eventType] = append(entries[:i:i], entries[i+1:]...)
			if len(d.listeners[eventType]) == 0 {
				delete(d.listeners, eventType)
			}
			return
		}
	}
}

// Dispatch invokes every listener registered for the envelope's type, in
// registration order, with the envelope's data payload. A panic in one
// listener does not prevent the remaining listeners from running.
func (d *Dispatcher) Dispatch(env Envelope) {
	d.mu.RLock()
	entries := d.listeners[env.Type]
	snapshot := make([]listenerEntry, len(entries))
	copy(snapshot, entries)
	d.mu.RUnlock()

	for _, entry := range snapshot {
		d.invoke(env.Type, entry.fn, env.Data)
	}
}

// invoke runs a single listener, isolating failures.
func (d *Dispatcher) invoke(eventType string, fn Listener, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("listener panicked",
				"event_type", eventType,
				"panic", r,
			)
		}
	}()
	fn(data)
}
