package persistence

import (
	"context"
	"path/filepath"
	"testing"
)

func openReceiptRepo(t *testing.T) *ReceiptRepo {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return NewReceiptRepo(db)
}

func TestReceiptMarksNeverMoveBackward(t *testing.T) {
	ctx := context.Background()
	repo := openReceiptRepo(t)

	if err := repo.MarkRead(ctx, "grpTeam", "usrBob", 10); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if err := repo.MarkRead(ctx, "grpTeam", "usrBob", 4); err != nil {
		t.Fatalf("mark read lower: %v", err)
	}

	marks, err := repo.ListByTopic(ctx, "grpTeam")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(marks) != 1 {
		t.Fatalf("expected one mark row, got %d", len(marks))
	}
	if marks[0].ReadSeq != 10 || marks[0].RecvSeq != 10 {
		t.Fatalf("unexpected marks: %+v", marks[0])
	}
}

func TestReceiptReadImpliesReceived(t *testing.T) {
	ctx := context.Background()
	repo := openReceiptRepo(t)

	if err := repo.MarkReceived(ctx, "grpTeam", "usrBob", 3); err != nil {
		t.Fatalf("mark received: %v", err)
	}
	if err := repo.MarkRead(ctx, "grpTeam", "usrBob", 8); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	marks, _ := repo.ListByTopic(ctx, "grpTeam")
	if marks[0].ReadSeq != 8 || marks[0].RecvSeq != 8 {
		t.Fatalf("read must advance recv as well, got %+v", marks[0])
	}
}

func TestReceiptCountsExcludeSelf(t *testing.T) {
	ctx := context.Background()
	repo := openReceiptRepo(t)

	if err := repo.MarkRead(ctx, "grpTeam", "usrMe", 20); err != nil {
		t.Fatalf("mark self: %v", err)
	}
	if err := repo.MarkRead(ctx, "grpTeam", "usrBob", 5); err != nil {
		t.Fatalf("mark bob: %v", err)
	}
	if err := repo.MarkReceived(ctx, "grpTeam", "usrCarol", 5); err != nil {
		t.Fatalf("mark carol: %v", err)
	}

	readCount, recvCount, err := repo.CountsFor(ctx, "grpTeam", "usrMe", 5)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if readCount != 1 {
		t.Fatalf("expected 1 reader, got %d", readCount)
	}
	if recvCount != 2 {
		t.Fatalf("expected 2 receivers, got %d", recvCount)
	}

	readCount, recvCount, err = repo.CountsFor(ctx, "grpTeam", "usrMe", 6)
	if err != nil {
		t.Fatalf("counts above marks: %v", err)
	}
	if readCount != 0 || recvCount != 0 {
		t.Fatalf("marks below the seq must not count, got %d/%d", readCount, recvCount)
	}
}
