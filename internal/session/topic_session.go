package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ffchat/internal/bus"
	"ffchat/internal/client"
	"ffchat/internal/config"
	"ffchat/internal/domain"
	"ffchat/internal/persistence"
	"ffchat/internal/projection"
)

// State is the attachment state of the active conversation.
type State int

const (
	StateUnbound State = iota
	StateAttaching
	StateAttached
	StateDeleted
	StateDetached
)

// TopicSession drives the active conversation: subscribe/attach with
// redirect handling, resubscription after reconnect, push-event fan-out
// and teardown. UI calls and the connection's event dispatch are
// serialized through its lock.
type TopicSession struct {
	logger    *slog.Logger
	registry  *Registry
	bus       bus.MessageBus
	messages  *persistence.MessageRepo
	receipts  *persistence.ReceiptRepo
	writer    *persistence.Writer
	projector *projection.Projector
	queue     *SyncQueue
	notifier  *Notifier
	cfg       config.ChatConfig

	ctx context.Context

	mu        sync.Mutex
	state     State
	topicName string
	removers  []func()
}

func NewTopicSession(
	logger *slog.Logger,
	registry *Registry,
	b bus.MessageBus,
	messages *persistence.MessageRepo,
	receipts *persistence.ReceiptRepo,
	writer *persistence.Writer,
	projector *projection.Projector,
	cfg config.ChatConfig,
) *TopicSession {
	s := &TopicSession{
		logger:    logger,
		registry:  registry,
		bus:       b,
		messages:  messages,
		receipts:  receipts,
		writer:    writer,
		projector: projector,
		cfg:       cfg,
	}
	s.queue = NewSyncQueue(logger.With("part", "syncqueue"))
	s.notifier = NewNotifier(logger.With("part", "notifier"), registry.Conn, b, cfg)

	return s
}

// Start registers push-event handlers and launches the sync worker. The
// queue starts paused; delivery is released when the caller resumes it
// or when a subscribe completes.
func (s *TopicSession) Start(ctx context.Context) {
	s.ctx = ctx
	s.queue.Pause()
	s.queue.Start(ctx)

	events := s.registry.Conn().Events()
	s.mu.Lock()
	s.removers = append(s.removers,
		events.Handle(client.EventLogin, s.onLogin),
		events.Handle(client.EventDisconnected, s.onDisconnected),
		events.Handle(client.EventData, s.onData),
		events.Handle(client.EventInfo, s.onInfo),
		events.Handle(client.EventPres, s.onPres),
		events.Handle(client.EventMetaDesc, s.onMetaDesc),
		events.Handle(client.EventMetaSub, s.onMetaSub),
	)
	s.mu.Unlock()
}

// State returns the current attachment state.
func (s *TopicSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// TopicName returns the bound topic, empty when unbound.
func (s *TopicSession) TopicName() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.topicName
}

// ChangeTopic binds the session to a topic and attaches to it.
// Idempotent for the name already attached or attaching: no second
// subscribe is issued. Selecting a different topic first hands the old
// selection back to the registry, which issues its best-effort leave.
func (s *TopicSession) ChangeTopic(name string) error {
	if name == "" {
		return ErrEmptyTopicName
	}

	s.mu.Lock()
	if s.topicName == name && (s.state == StateAttached || s.state == StateAttaching) {
		s.mu.Unlock()

		return nil
	}
	s.mu.Unlock()

	conn := s.registry.Conn()
	topic := conn.Directory().Ensure(name)
	if !topic.IsConversation() {
		return ErrIncompatibleTopic
	}

	s.registry.SetSelectedTopic(name)
	s.notifier.SetTopic(name)

	s.mu.Lock()
	s.topicName = name
	if conn.IsLive(name) {
		s.state = StateAttached
		s.mu.Unlock()

		return nil
	}
	s.mu.Unlock()

	s.attach()

	return nil
}

// attach issues the subscribe request for the bound topic. Not-yet
// authenticated sessions stay unbound; the login event retries.
func (s *TopicSession) attach() {
	conn := s.registry.Conn()

	s.mu.Lock()
	name := s.topicName
	s.mu.Unlock()
	if name == "" {
		return
	}

	if !conn.IsAuthenticated() {
		s.logger.Debug("attach deferred: not authenticated", "topic", name)
		s.setState(StateUnbound)

		return
	}

	topic, _ := conn.Directory().Get(name)
	if topic.Deleted {
		s.setState(StateDeleted)
		s.bus.Publish(bus.EventSubscriptionError, "topic no longer exists: "+name)

		return
	}

	s.setState(StateAttaching)
	builder := client.NewMetaGetBuilder().
		WithDesc().
		WithSub().
		WithLaterData(s.cfg.MessageWindow).
		WithDel()
	if topic.Owner {
		builder = builder.WithTags()
	}

	reply := conn.Subscribe(name, builder.Build())
	go func() {
		s.onSubscribeReply(name, <-reply)
	}()
}

func (s *TopicSession) onSubscribeReply(name string, reply client.Reply) {
	s.mu.Lock()
	current := s.topicName
	s.mu.Unlock()
	if current != name {
		// Selection moved on while the subscribe was in flight.
		return
	}

	if reply.Err != nil {
		s.onSubscribeError(name, reply.Err)

		return
	}

	ctrl := reply.Ctrl
	if ctrl != nil && ctrl.Code == 303 {
		redirect := ctrl.StringParam("topic", "")
		s.logger.Info("subscribe redirected", "topic", name, "target", redirect)
		if redirect != "" {
			s.mu.Lock()
			s.state = StateUnbound
			s.mu.Unlock()
			if err := s.ChangeTopic(redirect); err != nil {
				s.logger.Warn("redirect change failed", "target", redirect, "error", err)
			}
		}

		return
	}

	// The server may rewrite the name on first subscribe (new group).
	if ctrl != nil && ctrl.Topic != "" && ctrl.Topic != name {
		name = ctrl.Topic
		s.registry.SetSelectedTopic(name)
		s.notifier.SetTopic(name)
		s.mu.Lock()
		s.topicName = name
		s.mu.Unlock()
	}

	s.setState(StateAttached)
	s.logger.Info("topic attached", "topic", name)
	s.projector.RefreshSelectedUser(name)
	s.projector.RefreshConversations(s.ctx)

	// Release queued outbound messages now that the subscription is live.
	if err := s.EnqueueSyncAll(true); err != nil {
		s.logger.Debug("release pending messages failed", "error", err)
	}
}

func (s *TopicSession) onSubscribeError(name string, err error) {
	switch {
	case errors.Is(err, client.ErrAlreadySubscribed):
		s.setState(StateAttached)
	case errors.Is(err, client.ErrNotConnected):
		s.setState(StateUnbound)
		if s.cfg.ReconnectOnNotConnected {
			s.registry.Conn().Reconnect(false)
		}
	case errors.Is(err, client.ErrUnauthenticated):
		s.setState(StateUnbound)
	case client.IsClusterUnreachable(err):
		s.logger.Warn("cluster unreachable, forcing reconnect", "topic", name)
		s.setState(StateUnbound)
		s.registry.Conn().Reconnect(true)
	case client.IsNotFound(err):
		s.logger.Warn("subscribe rejected", "topic", name, "error", err)
		s.setState(StateUnbound)
		s.bus.Publish(bus.EventSubscriptionError, err.Error())
	default:
		s.logger.Warn("subscribe failed", "topic", name, "error", err)
		s.setState(StateUnbound)
	}
}

// SendMessage stores the content as a queued message and submits it for
// delivery. Capture is immediate even while delivery is paused.
func (s *TopicSession) SendMessage(content domain.Content) error {
	s.mu.Lock()
	name := s.topicName
	s.mu.Unlock()
	if name == "" {
		return ErrEmptyTopicName
	}

	conn := s.registry.Conn()
	localID, err := s.messages.Append(s.ctx, domain.Message{
		Topic:   name,
		From:    conn.MyID(),
		Content: content,
		Status:  domain.StatusQueued,
		At:      time.Now(),
	})
	if err != nil {
		return err
	}

	// Show the pending message right away.
	s.projector.RefreshMessages(s.ctx, name)

	return s.EnqueueSyncOne(localID, true)
}

// EnqueueSyncOne submits a job pushing one queued message.
func (s *TopicSession) EnqueueSyncOne(localID int64, refresh bool) error {
	return s.queue.Enqueue(func(ctx context.Context) {
		s.syncOne(ctx, localID)
		if refresh {
			s.refreshAfterSync(ctx)
		}
	})
}

// EnqueueSyncAll submits a job flushing all queued and failed messages
// for the bound topic, in store order.
func (s *TopicSession) EnqueueSyncAll(refresh bool) error {
	return s.queue.Enqueue(func(ctx context.Context) {
		s.mu.Lock()
		name := s.topicName
		s.mu.Unlock()
		if name == "" {
			return
		}

		pending, err := s.messages.Pending(ctx, name)
		if err != nil {
			s.logger.Warn("load pending messages failed", "topic", name, "error", err)

			return
		}
		for _, msg := range pending {
			s.syncOne(ctx, msg.LocalID)
		}
		if refresh {
			s.refreshAfterSync(ctx)
		}
	})
}

// syncOne publishes a single stored message. Failure marks the message
// failed and moves on; the queue itself never aborts.
func (s *TopicSession) syncOne(ctx context.Context, localID int64) {
	msg, err := s.messages.Get(ctx, localID)
	if err != nil {
		s.logger.Warn("load message failed", "local_id", localID, "error", err)

		return
	}
	if msg == nil || (msg.Status != domain.StatusQueued && msg.Status != domain.StatusFailed) {
		return
	}

	if err := s.messages.UpdateStatus(ctx, localID, domain.StatusSending); err != nil {
		s.logger.Warn("mark sending failed", "local_id", localID, "error", err)
	}

	conn := s.registry.Conn()
	reply := <-conn.Publish(msg.Topic, msg.Content, nil)
	if reply.Err != nil {
		s.logger.Warn("publish failed", "topic", msg.Topic, "local_id", localID, "error", reply.Err)
		if err := s.messages.UpdateStatus(ctx, localID, domain.StatusFailed); err != nil {
			s.logger.Warn("mark failed failed", "local_id", localID, "error", err)
		}

		return
	}

	seq := reply.Ctrl.IntParam("seq", 0)
	if err := s.messages.Confirm(ctx, localID, seq); err != nil {
		s.logger.Warn("confirm message failed", "local_id", localID, "error", err)
	}
}

func (s *TopicSession) refreshAfterSync(ctx context.Context) {
	s.mu.Lock()
	name := s.topicName
	s.mu.Unlock()
	if name == "" {
		return
	}
	s.projector.RefreshMessages(ctx, name)
	s.projector.RefreshConversations(ctx)
}

// MarkRead schedules a read receipt for the newest stored message and
// clears the unread counter.
func (s *TopicSession) MarkRead() {
	s.mu.Lock()
	name := s.topicName
	s.mu.Unlock()
	if name == "" {
		return
	}

	last, err := s.messages.Last(s.ctx, name)
	if err != nil {
		s.logger.Warn("load last message failed", "topic", name, "error", err)

		return
	}
	if last != nil && last.SeqID > 0 {
		s.notifier.ScheduleReadReceipt(last.SeqID)
	}
	s.registry.Conn().Directory().ClearUnread(name)
	s.projector.RefreshConversations(s.ctx)
}

// Stop tears the session down: handlers removed, sync worker released,
// pending notifier timers cancelled, selection cleared. Terminal.
func (s *TopicSession) Stop() {
	s.mu.Lock()
	s.state = StateDetached
	s.topicName = ""
	removers := s.removers
	s.removers = nil
	s.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
	s.queue.ShutdownNow()
	s.notifier.Stop()
	s.registry.SetSelectedTopic("")
}

func (s *TopicSession) setState(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = next
}

func (s *TopicSession) isCurrent(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return topic != "" && topic == s.topicName
}

// Push-event handlers. The connection read loop is the only caller.

func (s *TopicSession) onLogin(client.Event) {
	s.mu.Lock()
	name := s.topicName
	state := s.state
	s.mu.Unlock()
	if name == "" || state == StateAttached || state == StateDeleted || state == StateDetached {
		return
	}
	s.attach()
}

func (s *TopicSession) onDisconnected(client.Event) {
	s.mu.Lock()
	if s.state == StateAttached || s.state == StateAttaching {
		// Subscription died with the socket; the next login re-attaches.
		s.state = StateUnbound
	}
	s.mu.Unlock()
}

func (s *TopicSession) onData(ev client.Event) {
	if !s.isCurrent(ev.Topic) || ev.Data == nil {
		return
	}
	data := ev.Data
	conn := s.registry.Conn()
	mine := conn.IsMe(data.From)

	s.writer.Enqueue("append incoming message", func(ctx context.Context) error {
		_, err := s.messages.Append(ctx, domain.Message{
			Topic:   data.Topic,
			SeqID:   data.Seq,
			From:    data.From,
			Content: data.Content,
			Status:  domain.StatusSent,
			At:      data.Ts,
		})
		if err != nil {
			return err
		}
		s.projector.RefreshMessages(ctx, data.Topic)
		s.projector.RefreshConversations(ctx)

		return nil
	})

	if !mine {
		conn.NoteRecv(data.Topic, data.Seq)
		s.notifier.ScheduleReadReceipt(data.Seq)
		s.notifier.HandlePeerData()
		s.bus.Publish(bus.EventIncomingMessage, *data)
	}
}

func (s *TopicSession) onInfo(ev client.Event) {
	if !s.isCurrent(ev.Topic) || ev.Info == nil {
		return
	}
	info := ev.Info

	switch info.What {
	case "read", "recv":
		s.writer.Enqueue("apply receipt", func(ctx context.Context) error {
			var err error
			if info.What == "read" {
				err = s.receipts.MarkRead(ctx, info.Topic, info.From, info.Seq)
			} else {
				err = s.receipts.MarkReceived(ctx, info.Topic, info.From, info.Seq)
			}
			if err != nil {
				return err
			}
			s.projector.RefreshMessages(ctx, info.Topic)
			s.projector.RefreshConversations(ctx)

			return nil
		})
	case "kp":
		if !s.registry.Conn().IsMe(info.From) {
			s.notifier.HandlePeerKeyPress()
		}
	}
}

func (s *TopicSession) onPres(ev client.Event) {
	if !s.isCurrent(ev.Topic) || ev.Pres == nil {
		return
	}

	if ev.Pres.What == "gone" {
		s.setState(StateDeleted)
		s.bus.Publish(bus.EventSubscriptionError, "topic no longer exists: "+ev.Topic)
	}
	s.projector.RefreshSelectedUser(ev.Topic)
	s.projector.RefreshMessages(s.ctx, ev.Topic)
}

func (s *TopicSession) onMetaDesc(ev client.Event) {
	if !s.isCurrent(ev.Topic) {
		return
	}
	s.projector.RefreshSelectedUser(ev.Topic)
}

func (s *TopicSession) onMetaSub(ev client.Event) {
	if !s.isCurrent(ev.Topic) {
		return
	}
	// Sender names may have changed.
	s.projector.RefreshMessages(s.ctx, ev.Topic)
}
