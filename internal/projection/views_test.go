package projection

import (
	"strings"
	"testing"
	"time"

	"ffchat/internal/domain"
	"ffchat/internal/persistence"
)

func TestBuildConversationTruncatesPreview(t *testing.T) {
	long := strings.Repeat("a", MaxPreviewLength+20)
	topic := domain.Topic{Name: "usr2il9s", Public: domain.Profile{Name: "Alice"}}
	last := &domain.Message{
		Content: domain.NewTextContent(long),
		Status:  domain.StatusSent,
	}

	row := BuildConversation(topic, last, true, 0, 0, time.Now())

	if len(row.Preview) != MaxPreviewLength {
		t.Fatalf("expected preview of %d runes, got %d", MaxPreviewLength, len(row.Preview))
	}
	if row.Name != "Alice" {
		t.Fatalf("unexpected display name: %q", row.Name)
	}
	if row.Delivery != domain.BadgeSent {
		t.Fatalf("unexpected delivery badge: %q", row.Delivery)
	}
}

func TestBuildConversationWithoutMessages(t *testing.T) {
	topic := domain.Topic{Name: "grpFresh", Unread: 2}

	row := BuildConversation(topic, nil, false, 0, 0, time.Now())

	if row.Preview != "" || row.Delivery != "" {
		t.Fatalf("empty conversation must carry no preview or badge, got %+v", row)
	}
	if row.Name != FallbackDisplayName {
		t.Fatalf("expected fallback name, got %q", row.Name)
	}
	if row.Unread != 2 {
		t.Fatalf("unexpected unread count: %d", row.Unread)
	}
}

func TestBuildMessageViewAttachmentStatus(t *testing.T) {
	attachment := domain.Content{
		Text: "report",
		Ent:  []domain.Entity{{Tag: "EX", Data: map[string]any{"ref": "/file/r"}}},
	}

	cases := []struct {
		name   string
		status domain.MessageStatus
		want   string
	}{
		{"queued uploads", domain.StatusQueued, "uploading"},
		{"sending uploads", domain.StatusSending, "uploading"},
		{"failed upload", domain.StatusFailed, "failed"},
		{"delivered upload", domain.StatusSent, "done"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			view := BuildMessageView(domain.Message{Content: attachment, Status: tc.status}, true, 0, 0, "")
			if view.AttachmentStatus != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, view.AttachmentStatus)
			}
			if !view.HasAttachment || !view.IsFile {
				t.Fatalf("expected attachment flags set, got %+v", view)
			}
		})
	}
}

func TestBuildMessageViewPlainText(t *testing.T) {
	view := BuildMessageView(domain.Message{
		LocalID: 42,
		SeqID:   7,
		Content: domain.NewTextContent("hi"),
		Status:  domain.StatusSent,
	}, true, 1, 1, "Alice")

	if view.AttachmentStatus != "none" || view.HasAttachment || view.IsFile {
		t.Fatalf("plain text must carry no attachment state, got %+v", view)
	}
	if view.Delivery != domain.BadgeSentRead {
		t.Fatalf("unexpected badge: %q", view.Delivery)
	}
	if view.MsgID != 42 || view.SeqID != 7 || view.SenderName != "Alice" {
		t.Fatalf("unexpected identity fields: %+v", view)
	}
}

func TestBuildSelectedUser(t *testing.T) {
	now := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	topic := domain.Topic{
		Name:     "usr2il9s",
		Public:   domain.Profile{Name: "Alice"},
		Online:   true,
		LastSeen: now.Add(-5 * time.Minute),
		Deleted:  false,
	}

	view := BuildSelectedUser(topic, now)

	if view.Name != "Alice" || !view.Online || view.Deleted {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.LastSeen != "5 min. ago" {
		t.Fatalf("unexpected last seen: %q", view.LastSeen)
	}
}

func TestCountMarksExcludesSelfAndLowerMarks(t *testing.T) {
	marks := []persistence.Receipt{
		{Topic: "grpTeam", UserID: "usrMe", ReadSeq: 10, RecvSeq: 10},
		{Topic: "grpTeam", UserID: "usrBob", ReadSeq: 5, RecvSeq: 7},
		{Topic: "grpTeam", UserID: "usrCarol", ReadSeq: 0, RecvSeq: 6},
	}

	readCount, recvCount := countMarks(marks, "usrMe", 5)
	if readCount != 1 {
		t.Fatalf("expected 1 reader, got %d", readCount)
	}
	if recvCount != 2 {
		t.Fatalf("expected 2 receivers, got %d", recvCount)
	}

	readCount, recvCount = countMarks(marks, "usrMe", 8)
	if readCount != 0 || recvCount != 0 {
		t.Fatalf("marks below seq must not count, got %d/%d", readCount, recvCount)
	}
}
