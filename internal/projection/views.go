package projection

import (
	"time"

	"ffchat/internal/domain"
)

const (
	// MaxPreviewLength bounds the conversation-list excerpt.
	MaxPreviewLength = 60
	// FallbackDisplayName stands in for contacts without a public name.
	FallbackDisplayName = "Unknown user"
)

// ConversationSummary is the conversation-list row pushed to the UI.
type ConversationSummary struct {
	Topic    string               `json:"topic"`
	Name     string               `json:"name"`
	Preview  string               `json:"previewText"`
	Delivery domain.DeliveryBadge `json:"delivery"`
	Unread   int                  `json:"unreadCount"`
	Online   bool                 `json:"online"`
	LastSeen string               `json:"lastseen"`
	Muted    bool                 `json:"muted"`
	Blocked  bool                 `json:"blocked"`
}

// MessageView is one rendered message of the active conversation.
type MessageView struct {
	SeqID            int                  `json:"seqId"`
	IsMine           bool                 `json:"isMine"`
	MsgID            int64                `json:"msgId"`
	Text             string               `json:"text"`
	IsFile           bool                 `json:"isFile"`
	HasAttachment    bool                 `json:"hasAtt"`
	AttachmentStatus string               `json:"attStatus"`
	SenderName       string               `json:"userName,omitempty"`
	Delivery         domain.DeliveryBadge `json:"delivery"`
}

// SelectedUserView is the chat-screen header for the active topic.
type SelectedUserView struct {
	Topic    string `json:"topic"`
	Name     string `json:"name"`
	Online   bool   `json:"isOnline"`
	LastSeen string `json:"lastseen"`
	Deleted  bool   `json:"isDeleted"`
}

// BuildConversation derives a conversation-list row. Pure: no side
// effects, deterministic for fixed now.
func BuildConversation(t domain.Topic, last *domain.Message, isMine bool, readCount, recvCount int, now time.Time) ConversationSummary {
	summary := ConversationSummary{
		Topic:    t.Name,
		Name:     displayName(t.Public),
		Unread:   t.Unread,
		Online:   t.Online,
		LastSeen: domain.RelativeTimeString(t.LastSeen, now),
		Muted:    t.Muted,
		Blocked:  t.Blocked,
	}
	if last != nil {
		summary.Preview = last.Content.Preview(MaxPreviewLength)
		summary.Delivery = domain.DeriveDeliveryBadge(isMine, last.Status, readCount, recvCount)
	}

	return summary
}

// BuildMessageView derives one message row. Pure.
func BuildMessageView(m domain.Message, isMine bool, readCount, recvCount int, senderName string) MessageView {
	refs := m.Content.References()
	hasAttachment := len(refs) > 0

	view := MessageView{
		SeqID:            m.SeqID,
		IsMine:           isMine,
		MsgID:            m.LocalID,
		Text:             m.Content.Text,
		IsFile:           m.Content.HasEntity(domain.RichEntityTags...),
		HasAttachment:    hasAttachment,
		AttachmentStatus: "none",
		SenderName:       senderName,
		Delivery:         domain.DeriveDeliveryBadge(isMine, m.Status, readCount, recvCount),
	}
	if hasAttachment {
		switch {
		case m.Status == domain.StatusFailed:
			view.AttachmentStatus = "failed"
		case m.IsPending():
			view.AttachmentStatus = "uploading"
		case hasAttachment:
			view.AttachmentStatus = "done"
		}
	}

	return view
}

// BuildSelectedUser derives the chat header for the active topic. Pure.
func BuildSelectedUser(t domain.Topic, now time.Time) SelectedUserView {
	return SelectedUserView{
		Topic:    t.Name,
		Name:     displayName(t.Public),
		Online:   t.Online,
		LastSeen: domain.RelativeTimeString(t.LastSeen, now),
		Deleted:  t.Deleted,
	}
}

func displayName(p domain.Profile) string {
	if p.Name == "" {
		return FallbackDisplayName
	}

	return p.Name
}
