package session

import (
	"log/slog"
	"sync"
)

// Registry owns the single connection handle and the currently selected
// topic name. It is created once in main and passed by reference; the
// connection itself is created lazily, exactly once, by the injected
// factory.
type Registry struct {
	logger  *slog.Logger
	factory func() Connection

	mu       sync.Mutex
	conn     Connection
	selected string
}

func NewRegistry(logger *slog.Logger, factory func() Connection) *Registry {
	return &Registry{
		logger:  logger,
		factory: factory,
	}
}

// Conn returns the connection, creating and configuring it on first
// access. Concurrent first callers observe a single instance.
func (r *Registry) Conn() Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		r.conn = r.factory()
	}

	return r.conn
}

// Invalidate clears the selected topic, logs out and discards the
// connection. The next Conn call creates a fresh instance; any topic
// session bound to the old connection must not be reused.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.selected = ""
	r.mu.Unlock()

	if conn != nil {
		conn.Logout()
	}
}

// SetSelectedTopic records the new selection. If a different topic was
// selected before, a best-effort leave is issued for it; leave failures
// are swallowed and never block the new selection.
func (r *Registry) SetSelectedTopic(name string) {
	r.mu.Lock()
	old := r.selected
	r.selected = name
	conn := r.conn
	r.mu.Unlock()

	if conn == nil || old == "" || old == name {
		return
	}
	if !conn.IsLive(old) {
		return
	}
	reply := conn.Leave(old, false)
	go func() {
		if res := <-reply; res.Err != nil {
			r.logger.Debug("leave previous topic failed", "topic", old, "error", res.Err)
		}
	}()
}

// SelectedTopic returns the current selection, empty when none.
func (r *Registry) SelectedTopic() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.selected
}
