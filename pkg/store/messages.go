package store

import (
	"context"

	"work/pkg/protocol"
)

// SendMessage queues a message for a worker.
func (s *Store) SendMessage(ctx context.Context, workerID int64, messageType, payload string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (worker_id, message_type, payload, created_at) VALUES (?, ?, ?, ?)`,
		workerID, messageType, payload, s.timestamp())
	if err != nil {
		return unavailable("send message", err)
	}
	return nil
}

// Messages returns the worker's unread messages in arrival order. With
// markRead the returned messages are marked read in the same transaction.
func (s *Store) Messages(ctx context.Context, workerID int64, markRead bool) ([]protocol.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("get messages", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, worker_id, message_type, payload, created_at
		FROM messages WHERE worker_id = ? AND read_at IS NULL ORDER BY id`, workerID)
	if err != nil {
		return nil, unavailable("get messages", err)
	}

	var msgs []protocol.Message
	for rows.Next() {
		var m protocol.Message
		if err := rows.Scan(&m.ID, &m.WorkerID, &m.Type, &m.Payload, &m.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, unavailable("scan message", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, unavailable("iterate messages", err)
	}
	_ = rows.Close()

	if markRead && len(msgs) > 0 {
		now := s.timestamp()
		last := msgs[len(msgs)-1].ID
		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET read_at = ? WHERE worker_id = ? AND read_at IS NULL AND id <= ?`,
			now, workerID, last); err != nil {
			return nil, unavailable("mark messages read", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("get messages", err)
	}
	return msgs, nil
}
