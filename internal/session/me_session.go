package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"ffchat/internal/bus"
	"ffchat/internal/client"
	"ffchat/internal/projection"
)

// MeSession keeps the account's own "me" topic attached. The me topic
// carries the contact list, presence and unread counters for every
// conversation, so it is (re)subscribed after each successful login and
// its events feed the conversation list projection.
type MeSession struct {
	logger    *slog.Logger
	registry  *Registry
	bus       bus.MessageBus
	projector *projection.Projector

	ctx context.Context

	mu       sync.Mutex
	removers []func()
}

func NewMeSession(logger *slog.Logger, registry *Registry, b bus.MessageBus, projector *projection.Projector) *MeSession {
	return &MeSession{
		logger:    logger,
		registry:  registry,
		bus:       b,
		projector: projector,
	}
}

// Start registers the connection event handlers. Attachment itself waits
// for the login event.
func (s *MeSession) Start(ctx context.Context) {
	s.ctx = ctx

	events := s.registry.Conn().Events()
	s.mu.Lock()
	s.removers = append(s.removers,
		events.Handle(client.EventConnected, s.onConnected),
		events.Handle(client.EventDisconnected, s.onDisconnected),
		events.Handle(client.EventLogin, s.onLogin),
		events.Handle(client.EventPres, s.onPres),
		events.Handle(client.EventMetaDesc, s.onMeta),
		events.Handle(client.EventMetaSub, s.onMetaSub),
		events.Handle(client.EventMetaTags, s.onMeta),
		events.Handle(client.EventMetaCred, s.onMeta),
	)
	s.mu.Unlock()
}

// Stop removes the event handlers.
func (s *MeSession) Stop() {
	s.mu.Lock()
	removers := s.removers
	s.removers = nil
	s.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
}

// Attach subscribes to the me topic. Without authentication there is
// nothing to attach to; a reconnect is kicked off instead and the login
// event retries.
func (s *MeSession) Attach() {
	conn := s.registry.Conn()
	if !conn.IsAuthenticated() {
		s.logger.Debug("me attach deferred: not authenticated")
		conn.Reconnect(false)

		return
	}
	if conn.IsLive("me") {
		return
	}

	get := client.NewMetaGetBuilder().
		WithDesc().
		WithSub().
		WithTags().
		WithCred().
		Build()
	reply := conn.Subscribe("me", get)
	go func() {
		s.onAttachReply(<-reply)
	}()
}

func (s *MeSession) onAttachReply(reply client.Reply) {
	if reply.Err == nil {
		s.logger.Info("me topic attached")
		s.projector.RefreshConversations(s.ctx)

		return
	}
	err := reply.Err

	switch {
	case errors.Is(err, client.ErrAlreadySubscribed), errors.Is(err, client.ErrNotConnected):
		// Benign: either attached already or retried after reconnect.
	case client.IsClusterUnreachable(err):
		s.logger.Warn("cluster unreachable on me attach, forcing reconnect")
		s.registry.Conn().Reconnect(true)
	case client.IsNotFound(err):
		s.logger.Warn("me attach rejected", "error", err)
		s.bus.Publish(bus.EventSubscriptionError, err.Error())
	default:
		s.logger.Warn("me attach failed", "error", err)
	}
}

func (s *MeSession) onConnected(client.Event) {
	s.bus.Publish(bus.EventConnectionChange, true)
}

func (s *MeSession) onDisconnected(client.Event) {
	s.bus.Publish(bus.EventConnectionChange, false)
	s.projector.RefreshConversations(s.ctx)
}

func (s *MeSession) onLogin(client.Event) {
	s.Attach()
}

// onPres reacts to the me topic's presence stream: contacts coming
// online, new messages in other conversations, topics being deleted.
func (s *MeSession) onPres(ev client.Event) {
	if ev.Topic != "me" {
		return
	}
	s.projector.RefreshConversations(s.ctx)
}

func (s *MeSession) onMeta(ev client.Event) {
	if ev.Topic != "me" {
		return
	}
	s.bus.Publish(bus.EventUserDataChange, struct{}{})
}

func (s *MeSession) onMetaSub(ev client.Event) {
	if ev.Topic != "me" {
		return
	}
	s.projector.RefreshConversations(s.ctx)
	s.bus.Publish(bus.EventUserDataChange, struct{}{})
}
