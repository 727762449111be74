package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

const selectConversation = `SELECT id::text, student_id, topic_id, state, started_at, ended_at, metadata
	FROM conversations`

// PostgresStore is a PostgreSQL-backed ConversationStore. The rolling summary
// and compaction point live in the conversation's metadata JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed conversation store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conv Conversation) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if conv.StudentID == "" {
		return "", fmt.Errorf("student_id is required")
	}
	state := conv.State
	if state == "" {
		state = stateTutoring
	}
	startedAt := conv.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (student_id, topic_id, state, started_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id::text`,
		conv.StudentID,
		nullIfEmpty(conv.TopicID),
		state,
		startedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}

	for _, msg := range conv.Messages {
		if err := s.AddMessage(ctx, id, msg); err != nil {
			return "", fmt.Errorf("save initial messages: %w", err)
		}
	}
	return id, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrConversationNotFound
	}
	conv, err := s.scanConversation(s.pool.QueryRow(ctx, selectConversation+` WHERE id = $1::uuid`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadMessages(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *PostgresStore) GetActiveConversation(ctx context.Context, studentID string) (*Conversation, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	conv, err := s.scanConversation(s.pool.QueryRow(ctx,
		selectConversation+` WHERE student_id = $1 AND ended_at IS NULL
		 ORDER BY started_at DESC
		 LIMIT 1`,
		studentID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := s.loadMessages(ctx, conv); err != nil {
		return nil, false, err
	}
	return conv, true, nil
}

func (s *PostgresStore) AddMessage(ctx context.Context, conversationID string, msg StoredMessage) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if msg.Role == "" {
		return fmt.Errorf("message role is required")
	}
	if msg.Content == "" {
		return fmt.Errorf("message content is required")
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO messages (conversation_id, role, content, model, input_tokens, output_tokens, created_at)
		 SELECT c.id, $2, $3, $4, $5, $6, $7
		 FROM conversations c
		 WHERE c.id = $1::uuid`,
		conversationID,
		msg.Role,
		msg.Content,
		nullIfEmpty(msg.Model),
		nullIfZero(msg.InputTokens),
		nullIfZero(msg.OutputTokens),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *PostgresStore) SetSummary(ctx context.Context, conversationID string, summary string, compactedAt int) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE conversations
		 SET metadata = metadata || jsonb_build_object('summary', $2::text, 'compacted_at', $3::int)
		 WHERE id = $1::uuid`,
		conversationID,
		summary,
		compactedAt,
	)
	if err != nil {
		return fmt.Errorf("set summary: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *PostgresStore) EndConversation(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE conversations SET ended_at = NOW(), state = $2 WHERE id = $1::uuid`,
		id,
		stateEnded,
	)
	if err != nil {
		return fmt.Errorf("end conversation: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (s *PostgresStore) scanConversation(row pgx.Row) (*Conversation, error) {
	conv := &Conversation{Messages: []StoredMessage{}}
	var topicID *string
	var metadata []byte

	err := row.Scan(
		&conv.ID,
		&conv.StudentID,
		&topicID,
		&conv.State,
		&conv.StartedAt,
		&conv.EndedAt,
		&metadata,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pgx.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if topicID != nil {
		conv.TopicID = *topicID
	}
	conv.Summary, conv.CompactedAt = parseConversationMetadata(metadata)
	return conv, nil
}

func (s *PostgresStore) loadMessages(ctx context.Context, conv *Conversation) error {
	rows, err := s.pool.Query(ctx,
		`SELECT role, content, model, input_tokens, output_tokens, created_at
		 FROM messages
		 WHERE conversation_id = $1::uuid
		 ORDER BY id ASC`,
		conv.ID,
	)
	if err != nil {
		return fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg StoredMessage
		var model *string
		var inputTokens, outputTokens *int
		if err := rows.Scan(
			&msg.Role,
			&msg.Content,
			&model,
			&inputTokens,
			&outputTokens,
			&msg.CreatedAt,
		); err != nil {
			return fmt.Errorf("scan message: %w", err)
		}
		if model != nil {
			msg.Model = *model
		}
		if inputTokens != nil {
			msg.InputTokens = *inputTokens
		}
		if outputTokens != nil {
			msg.OutputTokens = *outputTokens
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate messages: %w", err)
	}
	return nil
}

type conversationMetadata struct {
	Summary     string `json:"summary"`
	CompactedAt int    `json:"compacted_at"`
}

func parseConversationMetadata(metadata []byte) (string, int) {
	if len(metadata) == 0 {
		return "", 0
	}
	var m conversationMetadata
	if err := json.Unmarshal(metadata, &m); err != nil {
		return "", 0
	}
	return m.Summary, m.CompactedAt
}

func nullIfZero(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
