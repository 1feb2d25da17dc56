package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/wunderwerk/emitter-go/internal/infrastructure/database"
)

// timeFormat stores timestamps in UTC at fixed width so that they sort
// lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Message is an archived channel message.
type Message struct {
	ID         string
	Channel    string
	Payload    []byte
	Size       int
	ReceivedAt time.Time
}

// Store persists recorded messages.
type Store interface {
	Save(ctx context.Context, msg Message) error
	ListByChannel(ctx context.Context, channel string, limit int) ([]Message, error)
	Count(ctx context.Context) (int, error)
}

// SQLiteStore is a Store backed by the messages table.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore creates a store over a migrated database.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save inserts msg.
func (s *SQLiteStore) Save(ctx context.Context, msg Message) error {
	payload := msg.Payload
	if payload == nil {
		payload = []byte{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, channel, payload, size, received_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID,
		msg.Channel,
		payload,
		msg.Size,
		msg.ReceivedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("saving message %s: %w", msg.ID, err)
	}
	return nil
}

// ListByChannel returns the newest messages for channel, newest first.
// A limit of zero or less returns all of them.
func (s *SQLiteStore) ListByChannel(ctx context.Context, channel string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channel, payload, size, received_at FROM messages
		 WHERE channel = ?
		 ORDER BY received_at DESC, id
		 LIMIT ?`,
		channel, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages for %s: %w", channel, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var receivedAt string
		if err := rows.Scan(&m.ID, &m.Channel, &m.Payload, &m.Size, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if m.ReceivedAt, err = time.Parse(timeFormat, receivedAt); err != nil {
			return nil, fmt.Errorf("parsing received_at of %s: %w", m.ID, err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

// Count returns the number of archived messages.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return n, nil
}
