package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ffchat/internal/bus"
	"ffchat/internal/client"
	"ffchat/internal/config"
	"ffchat/internal/domain"
)

const previewLength = 60

// Service listens to bus events and emits user-facing notifications.
type Service struct {
	bus           bus.MessageBus
	dir           *client.Directory
	currentConfig func() config.AppConfig
	isForeground  func() bool
	sender        Sender
	logger        *slog.Logger
}

func NewService(
	messageBus bus.MessageBus,
	dir *client.Directory,
	currentConfig func() config.AppConfig,
	isForeground func() bool,
	sender Sender,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default().With("component", "notify")
	}

	return &Service{
		bus:           messageBus,
		dir:           dir,
		currentConfig: currentConfig,
		isForeground:  isForeground,
		sender:        sender,
		logger:        logger,
	}
}

func (s *Service) Start(ctx context.Context) {
	if s == nil || s.bus == nil || s.sender == nil {
		return
	}

	msgSub := s.bus.Subscribe(bus.EventIncomingMessage)

	go func() {
		defer s.bus.Unsubscribe(msgSub, bus.EventIncomingMessage)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-msgSub:
				if !ok {
					return
				}
				msg, ok := raw.(client.MsgData)
				if !ok {
					continue
				}
				s.handleIncomingMessage(msg)
			}
		}
	}()
}

func (s *Service) handleIncomingMessage(msg client.MsgData) {
	prefs := s.notificationPrefs()
	if !s.shouldNotify(prefs, prefs.IncomingMessage) {
		return
	}

	senderName := s.senderName(msg.Topic, msg.From)
	body := msg.Content.Preview(previewLength)
	if body == "" {
		body = "(empty)"
	}

	title := "#" + s.topicTitle(msg.Topic)
	if domain.KindForTopicName(msg.Topic) == domain.TopicKindP2P {
		title = "@" + senderName
	}

	s.send(Payload{
		Title:   title,
		Content: fmt.Sprintf("%s: %s", senderName, body),
	})
}

func (s *Service) shouldNotify(prefs config.NotificationConfig, kindEnabled bool) bool {
	if !kindEnabled {
		return false
	}
	if prefs.NotifyWhenFocused {
		return true
	}
	if s.isForeground == nil {
		return true
	}

	return !s.isForeground()
}

func (s *Service) notificationPrefs() config.NotificationConfig {
	cfg := config.Default()
	if s.currentConfig != nil {
		cfg = s.currentConfig()
		cfg.FillMissingDefaults()
	}

	return cfg.Notifications
}

func (s *Service) senderName(topic, userID string) string {
	if sub, ok := s.dir.Subscriber(topic, userID); ok {
		if name := strings.TrimSpace(sub.Public.Name); name != "" {
			return name
		}
	}

	return "unknown"
}

func (s *Service) topicTitle(topic string) string {
	if t, ok := s.dir.Get(topic); ok {
		if name := strings.TrimSpace(t.Public.Name); name != "" {
			return name
		}
	}

	return strings.TrimSpace(topic)
}

func (s *Service) send(notification Payload) {
	title := strings.TrimSpace(notification.Title)
	content := strings.TrimSpace(notification.Content)
	if title == "" && content == "" {
		return
	}
	s.logger.Debug("sending notification", "title", title)
	s.sender.Send(Payload{
		Title:   title,
		Content: content,
	})
}
