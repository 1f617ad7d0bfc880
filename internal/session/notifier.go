package session

import (
	"log/slog"
	"sync"
	"time"

	"ffchat/internal/bus"
	"ffchat/internal/config"
)

const (
	// readReceiptDelay coalesces a burst of arriving messages into a
	// single read note carrying the highest sequence id.
	readReceiptDelay = 1000 * time.Millisecond
	// typingIndicatorDuration is how long the peer's typing flag stays
	// up without further key-press events.
	typingIndicatorDuration = 4000 * time.Millisecond
)

// Notifier owns the debounced read-receipt timer and the typing
// indicator for the attached topic.
type Notifier struct {
	logger   *slog.Logger
	conn     func() Connection
	bus      bus.MessageBus
	cfg      config.ChatConfig
	delay    time.Duration
	duration time.Duration

	mu          sync.Mutex
	topic       string
	readSeq     int
	readTimer   *time.Timer
	typing      bool
	typingTimer *time.Timer
}

func NewNotifier(logger *slog.Logger, conn func() Connection, b bus.MessageBus, cfg config.ChatConfig) *Notifier {
	return &Notifier{
		logger:   logger,
		conn:     conn,
		bus:      b,
		cfg:      cfg,
		delay:    readReceiptDelay,
		duration: typingIndicatorDuration,
	}
}

// SetTopic rebinds the notifier; a pending read receipt for the previous
// topic is dropped.
func (n *Notifier) SetTopic(topic string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.topic == topic {
		return
	}
	n.topic = topic
	n.readSeq = 0
	n.stopReadTimerLocked()
	n.clearTypingLocked(false)
}

// ScheduleReadReceipt schedules a single delayed read note. A later call
// before the timer fires supersedes the earlier one; only the highest
// sequence id is eventually sent.
func (n *Notifier) ScheduleReadReceipt(seq int) {
	if !n.cfg.SendReadReceipts {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.topic == "" {
		return
	}
	if seq > n.readSeq {
		n.readSeq = seq
	}
	n.stopReadTimerLocked()
	topic := n.topic
	n.readTimer = time.AfterFunc(n.delay, func() {
		n.fireReadReceipt(topic)
	})
}

func (n *Notifier) fireReadReceipt(topic string) {
	n.mu.Lock()
	if n.topic != topic {
		n.mu.Unlock()

		return
	}
	seq := n.readSeq
	n.readTimer = nil
	n.mu.Unlock()

	n.conn().NoteRead(topic, seq)
	n.logger.Debug("read receipt sent", "topic", topic, "seq", seq)
}

// SendTyping informs the topic's peers of a key press. Rate limiting is
// the caller's concern.
func (n *Notifier) SendTyping() {
	if !n.cfg.SendTypingNotifications {
		return
	}

	n.mu.Lock()
	topic := n.topic
	n.mu.Unlock()
	if topic == "" {
		return
	}
	n.conn().NoteKeyPress(topic)
}

// HandlePeerKeyPress raises the typing flag and restarts the auto-clear
// timer.
func (n *Notifier) HandlePeerKeyPress() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.typingTimer != nil {
		n.typingTimer.Stop()
	}
	n.typingTimer = time.AfterFunc(n.duration, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.clearTypingLocked(true)
	})
	if !n.typing {
		n.typing = true
		n.bus.Publish(bus.EventTypingStatus, true)
	}
}

// HandlePeerData clears the typing flag immediately: a delivered message
// ends the animation.
func (n *Notifier) HandlePeerData() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.clearTypingLocked(true)
}

// Stop cancels pending timers. Called on chat teardown.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.topic = ""
	n.readSeq = 0
	n.stopReadTimerLocked()
	n.clearTypingLocked(false)
}

func (n *Notifier) stopReadTimerLocked() {
	if n.readTimer != nil {
		n.readTimer.Stop()
		n.readTimer = nil
	}
}

func (n *Notifier) clearTypingLocked(notify bool) {
	if n.typingTimer != nil {
		n.typingTimer.Stop()
		n.typingTimer = nil
	}
	if n.typing {
		n.typing = false
		if notify {
			n.bus.Publish(bus.EventTypingStatus, false)
		}
	}
}
