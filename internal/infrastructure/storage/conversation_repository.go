package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/streamchat/backend/internal/domain/chat"
)

// conversationRepository 对话 SQLite 仓储实现
type conversationRepository struct {
	db *sql.DB
}

var _ chat.TurnRepository = (*conversationRepository)(nil)

// NewConversationRepository 创建对话仓储并确保表存在
func NewConversationRepository(db *sql.DB) (chat.TurnRepository, error) {
	if err := initConversationTables(db); err != nil {
		return nil, err
	}
	return &conversationRepository{db: db}, nil
}

func initConversationTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			sources TEXT,
			attachments TEXT,
			status TEXT NOT NULL,
			usage TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS turns (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			message_count INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("failed to init conversation tables: %w", err)
		}
	}
	return nil
}

// PersistTurn 在一个事务中替换会话的全部消息并记录轮次
func (r *conversationRepository) PersistTurn(ctx context.Context, conversationID string, history []*chat.Message) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = CASE WHEN conversations.title = '' THEN excluded.title ELSE conversations.title END,
			updated_at = excluded.updated_at`,
		conversationID, chat.TitleFromHistory(history), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to upsert conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return "", fmt.Errorf("failed to clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, conversation_id, position, role, content, sources, attachments, status, usage, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, m := range history {
		sources, attachments, usage, err := encodeMessageJSON(m)
		if err != nil {
			return "", err
		}
		if _, err := stmt.ExecContext(ctx,
			m.ID, conversationID, i, string(m.Role), m.Content,
			sources, attachments, string(m.Status), usage, m.Timestamp.UnixMilli(),
		); err != nil {
			return "", fmt.Errorf("failed to insert message %s: %w", m.ID, err)
		}
	}

	turnID := uuid.New().String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (id, conversation_id, message_count, created_at) VALUES (?, ?, ?, ?)`,
		turnID, conversationID, len(history), now,
	); err != nil {
		return "", fmt.Errorf("failed to insert turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit turn: %w", err)
	}
	return turnID, nil
}

// LoadHistory 读取会话历史
func (r *conversationRepository) LoadHistory(ctx context.Context, conversationID string) ([]*chat.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, role, content, sources, attachments, status, usage, created_at
		FROM messages WHERE conversation_id = ? ORDER BY position ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	history := make([]*chat.Message, 0)
	for rows.Next() {
		var (
			m                           chat.Message
			role, status                string
			sources, attachments, usage sql.NullString
			createdAt                   int64
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &sources, &attachments, &status, &usage, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = chat.Role(role)
		m.Status = chat.Status(status)
		m.Timestamp = time.UnixMilli(createdAt)
		if err := decodeMessageJSON(&m, sources, attachments, usage); err != nil {
			return nil, err
		}
		history = append(history, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return history, nil
}

// ListConversations 按更新时间倒序列出会话
func (r *conversationRepository) ListConversations(ctx context.Context) ([]*chat.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.created_at, c.updated_at, COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := make([]*chat.Conversation, 0)
	for rows.Next() {
		var (
			c                    chat.Conversation
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&c.ID, &c.Title, &createdAt, &updatedAt, &c.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.CreatedAt = time.UnixMilli(createdAt)
		c.UpdatedAt = time.UnixMilli(updatedAt)
		list = append(list, &c)
	}
	return list, rows.Err()
}

// DeleteConversation 删除会话及其消息
func (r *conversationRepository) DeleteConversation(ctx context.Context, conversationID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, q := range []string{
		`DELETE FROM messages WHERE conversation_id = ?`,
		`DELETE FROM turns WHERE conversation_id = ?`,
		`DELETE FROM conversations WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, conversationID); err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
	}
	return tx.Commit()
}

// TurnCount 会话已持久化的轮次数
func (r *conversationRepository) TurnCount(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns WHERE conversation_id = ?`, conversationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return n, nil
}

func encodeMessageJSON(m *chat.Message) (sources, attachments, usage sql.NullString, err error) {
	if len(m.Sources) > 0 {
		b, e := json.Marshal(m.Sources)
		if e != nil {
			return sources, attachments, usage, fmt.Errorf("failed to marshal sources: %w", e)
		}
		sources = sql.NullString{String: string(b), Valid: true}
	}
	if !m.Attachments.IsEmpty() {
		b, e := json.Marshal(m.Attachments)
		if e != nil {
			return sources, attachments, usage, fmt.Errorf("failed to marshal attachments: %w", e)
		}
		attachments = sql.NullString{String: string(b), Valid: true}
	}
	if m.Usage != nil {
		b, e := json.Marshal(m.Usage)
		if e != nil {
			return sources, attachments, usage, fmt.Errorf("failed to marshal usage: %w", e)
		}
		usage = sql.NullString{String: string(b), Valid: true}
	}
	return sources, attachments, usage, nil
}

func decodeMessageJSON(m *chat.Message, sources, attachments, usage sql.NullString) error {
	if sources.Valid && sources.String != "" {
		if err := json.Unmarshal([]byte(sources.String), &m.Sources); err != nil {
			return fmt.Errorf("failed to unmarshal sources of %s: %w", m.ID, err)
		}
	}
	if attachments.Valid && attachments.String != "" {
		if err := json.Unmarshal([]byte(attachments.String), &m.Attachments); err != nil {
			return fmt.Errorf("failed to unmarshal attachments of %s: %w", m.ID, err)
		}
	}
	if usage.Valid && usage.String != "" {
		var u chat.Usage
		if err := json.Unmarshal([]byte(usage.String), &u); err != nil {
			return fmt.Errorf("failed to unmarshal usage of %s: %w", m.ID, err)
		}
		m.Usage = &u
	}
	return nil
}
