package projection

import (
	"context"
	"log/slog"
	"time"

	"ffchat/internal/bus"
	"ffchat/internal/client"
	"ffchat/internal/persistence"
)

// Projector derives UI-facing views from the message store and the
// connection's topic directory, and pushes them to the notification
// sink. Derivations are read-only over both sources.
type Projector struct {
	logger   *slog.Logger
	bus      bus.MessageBus
	dir      *client.Directory
	messages *persistence.MessageRepo
	receipts *persistence.ReceiptRepo
	selfID   func() string
	window   int
}

func NewProjector(
	logger *slog.Logger,
	b bus.MessageBus,
	dir *client.Directory,
	messages *persistence.MessageRepo,
	receipts *persistence.ReceiptRepo,
	selfID func() string,
	window int,
) *Projector {
	if window <= 0 {
		window = 100
	}

	return &Projector{
		logger:   logger,
		bus:      b,
		dir:      dir,
		messages: messages,
		receipts: receipts,
		selfID:   selfID,
		window:   window,
	}
}

// RefreshConversations recomputes every conversation summary and emits
// one conversation-list event.
func (p *Projector) RefreshConversations(ctx context.Context) {
	now := time.Now()
	self := p.selfID()

	topics := p.dir.Conversations()
	out := make([]ConversationSummary, 0, len(topics))
	for _, t := range topics {
		last, err := p.messages.Last(ctx, t.Name)
		if err != nil {
			p.logger.Warn("load last message failed", "topic", t.Name, "error", err)
			continue
		}

		var (
			isMine               bool
			readCount, recvCount int
		)
		if last != nil {
			isMine = last.From == "" || last.From == self
			readCount, recvCount = p.countReceipts(ctx, t.Name, last.SeqID)
		}
		out = append(out, BuildConversation(t, last, isMine, readCount, recvCount, now))
	}

	p.bus.Publish(bus.EventConversationChange, out)
}

// RefreshMessages recomputes the active topic's message list and emits
// one message-list event.
func (p *Projector) RefreshMessages(ctx context.Context, topic string) {
	self := p.selfID()

	msgs, err := p.messages.ListWindow(ctx, topic, p.window)
	if err != nil {
		p.logger.Warn("load message window failed", "topic", topic, "error", err)

		return
	}
	marks, err := p.receipts.ListByTopic(ctx, topic)
	if err != nil {
		p.logger.Warn("load receipts failed", "topic", topic, "error", err)
		marks = nil
	}

	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		isMine := m.From == "" || m.From == self
		readCount, recvCount := countMarks(marks, self, m.SeqID)

		senderName := ""
		if sub, ok := p.dir.Subscriber(topic, m.From); ok {
			senderName = sub.Public.Name
		}
		out = append(out, BuildMessageView(m, isMine, readCount, recvCount, senderName))
	}

	p.bus.Publish(bus.EventMessageChange, out)
}

// RefreshSelectedUser emits the chat-header view for the active topic.
func (p *Projector) RefreshSelectedUser(topic string) {
	t, ok := p.dir.Get(topic)
	if !ok {
		return
	}
	p.bus.Publish(bus.EventSelectedUserChange, BuildSelectedUser(t, time.Now()))
}

func (p *Projector) countReceipts(ctx context.Context, topic string, seq int) (int, int) {
	if seq <= 0 {
		return 0, 0
	}
	readCount, recvCount, err := p.receipts.CountsFor(ctx, topic, p.selfID(), seq)
	if err != nil {
		p.logger.Warn("count receipts failed", "topic", topic, "error", err)

		return 0, 0
	}

	return readCount, recvCount
}

func countMarks(marks []persistence.Receipt, self string, seq int) (readCount, recvCount int) {
	if seq <= 0 {
		return 0, 0
	}
	for _, mark := range marks {
		if mark.UserID == self {
			continue
		}
		if mark.ReadSeq >= seq {
			readCount++
		}
		if mark.RecvSeq >= seq {
			recvCount++
		}
	}

	return readCount, recvCount
}
