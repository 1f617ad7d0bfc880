package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ffchat/internal/domain"
)

func openTestDB(t *testing.T) *MessageRepo {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewMessageRepo(db)
}

func TestMessageRepoAppendAndConfirm(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	id, err := repo.Append(ctx, domain.Message{
		Topic:   "usr2il9s",
		From:    "usrMe",
		Content: domain.NewTextContent("hello"),
		Status:  domain.StatusQueued,
		At:      time.Now(),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a local id")
	}

	if err := repo.Confirm(ctx, id, 7); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	msg, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if msg == nil {
		t.Fatal("expected the message back")
	}
	if msg.SeqID != 7 || msg.Status != domain.StatusSent {
		t.Fatalf("unexpected message after confirm: %+v", msg)
	}
	if msg.Content.Text != "hello" {
		t.Fatalf("unexpected content: %+v", msg.Content)
	}
}

func TestMessageRepoConfirmAfterEchoKeepsOneRow(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	draftID, err := repo.Append(ctx, domain.Message{
		Topic:   "usr2il9s",
		From:    "usrMe",
		Content: domain.NewTextContent("crossed"),
		Status:  domain.StatusQueued,
		At:      time.Now(),
	})
	if err != nil {
		t.Fatalf("append draft: %v", err)
	}

	// Server echo of the same message lands before the publish reply.
	echoID, err := repo.Append(ctx, domain.Message{
		Topic:   "usr2il9s",
		SeqID:   7,
		From:    "usrMe",
		Content: domain.NewTextContent("crossed"),
		Status:  domain.StatusSent,
		At:      time.Now(),
	})
	if err != nil {
		t.Fatalf("append echo: %v", err)
	}

	if err := repo.Confirm(ctx, draftID, 7); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	draft, err := repo.Get(ctx, draftID)
	if err != nil {
		t.Fatalf("get draft: %v", err)
	}
	if draft != nil {
		t.Fatalf("draft should be dropped, got %+v", draft)
	}

	echo, err := repo.Get(ctx, echoID)
	if err != nil {
		t.Fatalf("get echo: %v", err)
	}
	if echo == nil || echo.SeqID != 7 || echo.Status != domain.StatusSent {
		t.Fatalf("unexpected echo row: %+v", echo)
	}

	msgs, err := repo.ListWindow(ctx, "usr2il9s", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one surviving row, got %d", len(msgs))
	}

	// Confirming again for the surviving row is a no-op.
	if err := repo.Confirm(ctx, echoID, 7); err != nil {
		t.Fatalf("re-confirm: %v", err)
	}
	if echo, err = repo.Get(ctx, echoID); err != nil || echo == nil || echo.SeqID != 7 {
		t.Fatalf("row changed after re-confirm: %+v err=%v", echo, err)
	}
}

func TestMessageRepoAppendDeduplicatesBySeq(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	first := domain.Message{
		Topic:   "grpTeam",
		SeqID:   5,
		From:    "usrPeer",
		Content: domain.NewTextContent("once"),
		Status:  domain.StatusSent,
		At:      time.Now(),
	}
	if _, err := repo.Append(ctx, first); err != nil {
		t.Fatalf("append first: %v", err)
	}

	dup, err := repo.Append(ctx, first)
	if err != nil {
		t.Fatalf("append duplicate: %v", err)
	}
	if dup != 0 {
		t.Fatalf("expected duplicate to be ignored, got id %d", dup)
	}

	msgs, err := repo.ListWindow(ctx, "grpTeam", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one stored message, got %d", len(msgs))
	}
}

func TestMessageRepoQueuedMessagesDoNotCollide(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	for i := 0; i < 3; i++ {
		m := domain.Message{
			Topic:   "usr2il9s",
			From:    "usrMe",
			Content: domain.NewTextContent("queued"),
			Status:  domain.StatusQueued,
			At:      time.Now(),
		}
		if id, err := repo.Append(ctx, m); err != nil || id == 0 {
			t.Fatalf("append queued #%d: id=%d err=%v", i, id, err)
		}
	}

	pending, err := repo.Pending(ctx, "usr2il9s")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending messages, got %d", len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i].LocalID <= pending[i-1].LocalID {
			t.Fatal("pending messages must preserve capture order")
		}
	}
}

func TestMessageRepoListWindowChronological(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)
	base := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		m := domain.Message{
			Topic:   "grpTeam",
			SeqID:   i + 1,
			From:    "usrPeer",
			Content: domain.NewTextContent("msg"),
			Status:  domain.StatusSent,
			At:      base.Add(time.Duration(i) * time.Minute),
		}
		if _, err := repo.Append(ctx, m); err != nil {
			t.Fatalf("append #%d: %v", i, err)
		}
	}

	window, err := repo.ListWindow(ctx, "grpTeam", 3)
	if err != nil {
		t.Fatalf("list window: %v", err)
	}
	if len(window) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(window))
	}
	if window[0].SeqID != 3 || window[2].SeqID != 5 {
		t.Fatalf("expected seqs 3..5 in order, got %d..%d", window[0].SeqID, window[2].SeqID)
	}

	last, err := repo.Last(ctx, "grpTeam")
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last == nil || last.SeqID != 5 {
		t.Fatalf("unexpected last message: %+v", last)
	}
}

func TestMessageRepoUpdateStatusHonorsGuard(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	id, err := repo.Append(ctx, domain.Message{
		Topic:   "usr2il9s",
		From:    "usrMe",
		Content: domain.NewTextContent("x"),
		Status:  domain.StatusQueued,
		At:      time.Now(),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := repo.Confirm(ctx, id, 4); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := repo.UpdateStatus(ctx, id, domain.StatusSending); err != nil {
		t.Fatalf("update status: %v", err)
	}

	msg, _ := repo.Get(ctx, id)
	if msg.Status != domain.StatusSent {
		t.Fatalf("sent message must not regress, got status %d", msg.Status)
	}
}

func TestMessageRepoPruneFailed(t *testing.T) {
	ctx := context.Background()
	repo := openTestDB(t)

	failed, err := repo.Append(ctx, domain.Message{
		Topic:   "usr2il9s",
		From:    "usrMe",
		Content: domain.NewTextContent("lost"),
		Status:  domain.StatusFailed,
		At:      time.Now(),
	})
	if err != nil {
		t.Fatalf("append failed message: %v", err)
	}
	kept, err := repo.Append(ctx, domain.Message{
		Topic:   "usr2il9s",
		From:    "usrMe",
		Content: domain.NewTextContent("kept"),
		Status:  domain.StatusQueued,
		At:      time.Now(),
	})
	if err != nil {
		t.Fatalf("append queued message: %v", err)
	}

	if err := repo.PruneFailed(ctx, "usr2il9s"); err != nil {
		t.Fatalf("prune: %v", err)
	}

	if msg, _ := repo.Get(ctx, failed); msg != nil {
		t.Fatal("expected failed message to be pruned")
	}
	if msg, _ := repo.Get(ctx, kept); msg == nil {
		t.Fatal("expected queued message to survive pruning")
	}
}
