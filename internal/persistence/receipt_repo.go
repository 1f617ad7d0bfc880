package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// Receipt is one subscriber's read/received high-water marks for a topic.
type Receipt struct {
	Topic   string
	UserID  string
	ReadSeq int
	RecvSeq int
}

// ReceiptRepo tracks per-subscriber acknowledgement marks. A message with
// sequence id S counts as read by everyone whose read mark is >= S.
type ReceiptRepo struct {
	db *sql.DB
}

func NewReceiptRepo(db *sql.DB) *ReceiptRepo {
	return &ReceiptRepo{db: db}
}

// MarkRead advances a subscriber's read mark; marks never move backward.
// Reading implies receiving, so the recv mark advances too.
func (r *ReceiptRepo) MarkRead(ctx context.Context, topic, userID string, seq int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO receipts(topic, user_id, read_seq, recv_seq)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(topic, user_id) DO UPDATE SET
			read_seq = MAX(receipts.read_seq, excluded.read_seq),
			recv_seq = MAX(receipts.recv_seq, excluded.recv_seq)
	`, topic, userID, seq, seq)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	return nil
}

func (r *ReceiptRepo) MarkReceived(ctx context.Context, topic, userID string, seq int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO receipts(topic, user_id, read_seq, recv_seq)
		VALUES(?, ?, 0, ?)
		ON CONFLICT(topic, user_id) DO UPDATE SET
			recv_seq = MAX(receipts.recv_seq, excluded.recv_seq)
	`, topic, userID, seq)
	if err != nil {
		return fmt.Errorf("mark received: %w", err)
	}

	return nil
}

// CountsFor returns how many subscribers other than self have read and
// received the message with the given sequence id.
func (r *ReceiptRepo) CountsFor(ctx context.Context, topic, selfID string, seq int) (readCount, recvCount int, err error) {
	err = r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN read_seq >= ? THEN 1 END),
			COUNT(CASE WHEN recv_seq >= ? THEN 1 END)
		FROM receipts
		WHERE topic = ? AND user_id != ?
	`, seq, seq, topic, selfID).Scan(&readCount, &recvCount)
	if err != nil {
		return 0, 0, fmt.Errorf("count receipts: %w", err)
	}

	return readCount, recvCount, nil
}

// ListByTopic returns all acknowledgement marks for a topic.
func (r *ReceiptRepo) ListByTopic(ctx context.Context, topic string) ([]Receipt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT topic, user_id, read_seq, recv_seq
		FROM receipts
		WHERE topic = ?
	`, topic)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []Receipt
	for rows.Next() {
		var rec Receipt
		if err := rows.Scan(&rec.Topic, &rec.UserID, &rec.ReadSeq, &rec.RecvSeq); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}

	return out, nil
}
