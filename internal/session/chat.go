package session

import (
	"context"
	"log/slog"

	"ffchat/internal/bus"
	"ffchat/internal/config"
	"ffchat/internal/domain"
	"ffchat/internal/persistence"
	"ffchat/internal/projection"
)

// Chat is the surface the UI layer talks to. It composes the me-topic
// session, the active-conversation session, the delivery queue and the
// notifier into one object with UI-shaped operations.
type Chat struct {
	logger   *slog.Logger
	registry *Registry
	writer   *persistence.Writer
	messages *persistence.MessageRepo
	me       *MeSession
	topic    *TopicSession
}

func NewChat(
	logger *slog.Logger,
	registry *Registry,
	b bus.MessageBus,
	messages *persistence.MessageRepo,
	receipts *persistence.ReceiptRepo,
	writer *persistence.Writer,
	projector *projection.Projector,
	cfg config.ChatConfig,
) *Chat {
	return &Chat{
		logger:   logger,
		registry: registry,
		writer:   writer,
		messages: messages,
		me:       NewMeSession(logger.With("part", "me"), registry, b, projector),
		topic: NewTopicSession(
			logger.With("part", "topic"),
			registry, b, messages, receipts, writer, projector, cfg,
		),
	}
}

// Start wires both sessions into the connection's event stream and
// attaches the me topic if a login already happened.
func (c *Chat) Start(ctx context.Context) {
	c.me.Start(ctx)
	c.topic.Start(ctx)
	if c.registry.Conn().IsAuthenticated() {
		c.me.Attach()
	}
}

// SelectTopic opens a conversation: attach, release delivery and drop
// stale failed messages. Returns false if the topic cannot be opened.
func (c *Chat) SelectTopic(name string) bool {
	if err := c.topic.ChangeTopic(name); err != nil {
		c.logger.Warn("select topic failed", "topic", name, "error", err)
		c.registry.SetSelectedTopic("")

		return false
	}

	c.topic.queue.Resume()
	c.writer.Enqueue("prune failed messages", func(ctx context.Context) error {
		return c.messages.PruneFailed(ctx, name)
	})

	return true
}

// SendText captures a plain text message for delivery.
func (c *Chat) SendText(text string) error {
	return c.topic.SendMessage(domain.Content{Text: text})
}

// SendMessage captures rich content for delivery.
func (c *Chat) SendMessage(content domain.Content) error {
	return c.topic.SendMessage(content)
}

// SyncOne retries a single stored message by its local id.
func (c *Chat) SyncOne(localID int64) error {
	return c.topic.EnqueueSyncOne(localID, true)
}

// SyncAll flushes every queued and failed message of the open topic.
func (c *Chat) SyncAll() error {
	return c.topic.EnqueueSyncAll(true)
}

// PauseDelivery holds back outbound messages; capture keeps working.
func (c *Chat) PauseDelivery() {
	c.topic.queue.Pause()
}

// ResumeDelivery releases held messages in their original order.
func (c *Chat) ResumeDelivery() {
	c.topic.queue.Resume()
}

// MarkRead acknowledges the open conversation as read.
func (c *Chat) MarkRead() {
	c.topic.MarkRead()
}

// NotifyTyping tells the open conversation's peers the user is typing.
func (c *Chat) NotifyTyping() {
	c.topic.notifier.SendTyping()
}

// State exposes the attachment state of the open conversation.
func (c *Chat) State() State {
	return c.topic.State()
}

// SelectedTopic returns the open conversation's name.
func (c *Chat) SelectedTopic() string {
	return c.topic.TopicName()
}

// Teardown closes the conversation session and detaches the me session.
// The connection itself stays up; the registry owns its lifecycle.
func (c *Chat) Teardown() {
	c.topic.Stop()
	c.me.Stop()
}
