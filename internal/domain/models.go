package domain

import "time"

type TopicKind int

const (
	TopicKindMe TopicKind = iota + 1
	TopicKindFnd
	TopicKindP2P
	TopicKindGroup
	TopicKindSystem
)

// MessageStatus tracks the outbound delivery lifecycle. Incoming messages
// are stored as StatusSent directly.
type MessageStatus int

const (
	StatusQueued MessageStatus = iota + 1
	StatusSending
	StatusSent
	StatusFailed
)

// Profile is the cached public description of a user or topic.
type Profile struct {
	Name   string
	Avatar string
}

// Topic is a named conversation channel tracked by the connection.
type Topic struct {
	Name     string
	Kind     TopicKind
	Public   Profile
	Online   bool
	Unread   int
	LastSeen time.Time
	Deleted  bool
	Owner    bool
	Muted    bool
	Blocked  bool
	// Touched orders the conversation list; updated on every message.
	Touched time.Time
}

// IsConversation reports whether the topic can carry a chat session.
func (t Topic) IsConversation() bool {
	return t.Kind == TopicKindP2P || t.Kind == TopicKindGroup
}

// Subscriber is one entry of a topic's subscription list.
type Subscriber struct {
	UserID  string
	Public  Profile
	Deleted bool
}

// Message is a single chat message, local or server-acknowledged.
type Message struct {
	LocalID int64
	Topic   string
	// SeqID is the server-assigned monotonic ordinal; zero until the
	// message is acknowledged, which sorts queued messages ahead of any
	// server-assigned id.
	SeqID   int
	From    string
	Content Content
	Status  MessageStatus
	At      time.Time
}

// IsPending reports whether the message has not reached the server yet.
func (m Message) IsPending() bool {
	return m.Status <= StatusSending
}

// KindForTopicName classifies a topic by its name prefix.
func KindForTopicName(name string) TopicKind {
	switch {
	case name == "me":
		return TopicKindMe
	case name == "fnd":
		return TopicKindFnd
	case hasPrefix(name, "usr"), hasPrefix(name, "p2p"):
		return TopicKindP2P
	case hasPrefix(name, "grp"), name == "new", hasPrefix(name, "nch"):
		return TopicKindGroup
	default:
		return TopicKindSystem
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
