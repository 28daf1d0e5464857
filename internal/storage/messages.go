package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vennietweek/llm-chat/internal/models"
)

// MessageStore persists conversation turns. Ordering is by id: the
// autoincrement column keeps insertion order even when two rows share a
// created_at timestamp.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Add stores a new turn and returns the stored record.
func (s *MessageStore) Add(ctx context.Context, role models.Role, content string) (*models.Message, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (role, content, created_at) VALUES (?, ?, ?)`,
		role, content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	return &models.Message{ID: id, Role: role, Content: content, CreatedAt: now}, nil
}

// List returns all turns in conversation order.
func (s *MessageStore) List(ctx context.Context) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM chat_messages ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Recent returns the newest limit turns in conversation order
// (oldest of the window first).
func (s *MessageStore) Recent(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM chat_messages ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// LatestUser returns the most recent user turn, or nil when none exists.
func (s *MessageStore) LatestUser(ctx context.Context) (*models.Message, error) {
	var m models.Message
	err := s.db.QueryRowContext(ctx,
		`SELECT id, role, content, created_at FROM chat_messages WHERE role = ? ORDER BY id DESC LIMIT 1`,
		models.RoleUser,
	).Scan(&m.ID, &m.Role, &m.Content, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest user message: %w", err)
	}
	return &m, nil
}

// Clear removes every stored turn. Called once at startup so each run
// begins with a fresh conversation.
func (s *MessageStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages`); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]models.Message, error) {
	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
