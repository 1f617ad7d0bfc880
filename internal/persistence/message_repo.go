package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"ffchat/internal/domain"
)

// MessageRepo is the durable append-only message log, keyed by topic and
// server sequence id. Queued messages carry seq 0 until acknowledged.
type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) Append(ctx context.Context, m domain.Message) (int64, error) {
	content, err := json.Marshal(m.Content)
	if err != nil {
		return 0, fmt.Errorf("encode message content: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages(topic, seq, sender, content_json, status, at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(topic, seq) WHERE seq > 0 DO NOTHING
	`, m.Topic, m.SeqID, m.From, string(content), int(m.Status), storedAt(m.At))
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return 0, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get message local id: %w", err)
	}

	return id, nil
}

// Confirm records the server-assigned sequence id for a local message and
// marks it sent. When the server echo for the same (topic, seq) landed
// before the publish reply, the echo row wins and the local draft is
// dropped.
func (r *MessageRepo) Confirm(ctx context.Context, localID int64, seq int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("confirm message: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var topic string
	err = tx.QueryRowContext(ctx, `
		SELECT topic FROM messages WHERE local_id = ?
	`, localID).Scan(&topic)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("confirm message: %w", err)
	}

	var echoID int64
	err = tx.QueryRowContext(ctx, `
		SELECT local_id FROM messages WHERE topic = ? AND seq = ?
	`, topic, seq).Scan(&echoID)
	switch {
	case errors.Is(err, sql.ErrNoRows) || echoID == localID:
		if _, err := tx.ExecContext(ctx, `
			UPDATE messages SET seq = ?, status = ? WHERE local_id = ?
		`, seq, int(domain.StatusSent), localID); err != nil {
			return fmt.Errorf("confirm message: %w", err)
		}
	case err != nil:
		return fmt.Errorf("confirm message: %w", err)
	default:
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM messages WHERE local_id = ?
		`, localID); err != nil {
			return fmt.Errorf("confirm message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("confirm message: %w", err)
	}

	return nil
}

// UpdateStatus applies a delivery status change, honoring the domain
// transition guard.
func (r *MessageRepo) UpdateStatus(ctx context.Context, localID int64, status domain.MessageStatus) error {
	var current int
	err := r.db.QueryRowContext(ctx, `
		SELECT status FROM messages WHERE local_id = ?
	`, localID).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}

		return fmt.Errorf("read message status: %w", err)
	}
	if !domain.ShouldTransitionMessageStatus(domain.MessageStatus(current), status) {
		return nil
	}

	if _, err := r.db.ExecContext(ctx, `
		UPDATE messages SET status = ? WHERE local_id = ?
	`, int(status), localID); err != nil {
		return fmt.Errorf("update message status: %w", err)
	}

	return nil
}

// ListWindow returns up to limit messages for the topic ending at the
// newest, in chronological order.
func (r *MessageRepo) ListWindow(ctx context.Context, topic string, limit int) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT local_id, topic, seq, sender, content_json, status, at
		FROM messages
		WHERE topic = ?
		ORDER BY at DESC, local_id DESC
		LIMIT ?
	`, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages by topic: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages by topic: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out, nil
}

// Last returns the newest message for the topic, or nil if none exists.
func (r *MessageRepo) Last(ctx context.Context, topic string) (*domain.Message, error) {
	msgs, err := r.ListWindow(ctx, topic, 1)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	return &msgs[0], nil
}

// Pending returns queued and failed messages for the topic in send order.
func (r *MessageRepo) Pending(ctx context.Context, topic string) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT local_id, topic, seq, sender, content_json, status, at
		FROM messages
		WHERE topic = ? AND status IN (?, ?)
		ORDER BY local_id ASC
	`, topic, int(domain.StatusQueued), int(domain.StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("list pending messages: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending messages: %w", err)
	}

	return out, nil
}

// Get returns one message by local id, or nil if it does not exist.
func (r *MessageRepo) Get(ctx context.Context, localID int64) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT local_id, topic, seq, sender, content_json, status, at
		FROM messages
		WHERE local_id = ?
	`, localID)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return &m, nil
}

// PruneFailed removes failed messages for the topic.
func (r *MessageRepo) PruneFailed(ctx context.Context, topic string) error {
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM messages WHERE topic = ? AND status = ?
	`, topic, int(domain.StatusFailed)); err != nil {
		return fmt.Errorf("prune failed messages: %w", err)
	}

	return nil
}

func scanMessage(scanner interface {
	Scan(dest ...any) error
}) (domain.Message, error) {
	var (
		m          domain.Message
		contentRaw string
		status     int
		atMs       int64
	)
	if err := scanner.Scan(&m.LocalID, &m.Topic, &m.SeqID, &m.From, &contentRaw, &status, &atMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Message{}, err
		}

		return domain.Message{}, fmt.Errorf("scan message: %w", err)
	}
	if err := json.Unmarshal([]byte(contentRaw), &m.Content); err != nil {
		return domain.Message{}, fmt.Errorf("decode message content: %w", err)
	}
	m.Status = domain.MessageStatus(status)
	m.At = loadedAt(atMs)

	return m, nil
}
