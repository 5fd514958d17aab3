package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/mtgscribe/gateway/models"
)

const convCols = `id, user_id, title, total_tokens, summary_context, created_at, updated_at, last_message_at, deleted_at, archived_at`

func scanConversation(row *sql.Row) (*models.Conversation, error) {
	var c models.Conversation
	var title, summary sql.NullString
	var deletedAt, archivedAt sql.NullTime
	err := row.Scan(&c.ID, &c.UserID, &title, &c.TotalTokens, &summary, &c.CreatedAt, &c.UpdatedAt, &c.LastMessageAt, &deletedAt, &archivedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Title = title.String
	c.SummaryContext = summary.String
	if deletedAt.Valid {
		c.DeletedAt = &deletedAt.Time
	}
	if archivedAt.Valid {
		c.ArchivedAt = &archivedAt.Time
	}
	return &c, nil
}

// CreateConversation inserts a new, empty conversation owned by user.
func (s *Store) CreateConversation(ctx context.Context, c *models.Conversation) error {
	const q = `
		INSERT INTO conversations (id, user_id, title, total_tokens, summary_context, created_at, updated_at, last_message_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $6, $6)
	`
	_, err := s.db.ExecContext(ctx, q, c.ID, c.UserID, c.Title, c.TotalTokens, c.SummaryContext, c.CreatedAt)
	return err
}

// GetConversation returns a conversation only if owned by userID and not
// soft-deleted, per the ownership invariant in the data model.
func (s *Store) GetConversation(ctx context.Context, id, userID string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+convCols+` FROM conversations WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID)
	return scanConversation(row)
}

// ListActive returns a user's non-deleted, non-archived conversations
// ordered by last_message_at desc, along with a turn count and preview
// of the last user message for each.
func (s *Store) ListActive(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	const q = `
		SELECT c.id, c.user_id, c.title, c.total_tokens, c.summary_context,
		       c.created_at, c.updated_at, c.last_message_at, c.deleted_at, c.archived_at,
		       COALESCE(t.msg_count, 0),
		       COALESCE(t.last_preview, '')
		FROM conversations c
		LEFT JOIN (
			SELECT conversation_id, COUNT(*) AS msg_count,
			       (ARRAY_AGG(user_message ORDER BY created_at DESC))[1] AS last_preview
			FROM turns
			WHERE conversation_id IS NOT NULL
			GROUP BY conversation_id
		) t ON t.conversation_id = c.id
		WHERE c.user_id = $1 AND c.deleted_at IS NULL AND c.archived_at IS NULL
		ORDER BY c.last_message_at DESC
	`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ConversationSummary
	for rows.Next() {
		var cs models.ConversationSummary
		var title, summary sql.NullString
		var deletedAt, archivedAt sql.NullTime
		if err := rows.Scan(&cs.Conversation.ID, &cs.Conversation.UserID, &title, &cs.Conversation.TotalTokens,
			&summary, &cs.Conversation.CreatedAt, &cs.Conversation.UpdatedAt, &cs.Conversation.LastMessageAt,
			&deletedAt, &archivedAt, &cs.MessageCount, &cs.LastMessagePrev); err != nil {
			return nil, err
		}
		cs.Conversation.Title = title.String
		cs.Conversation.SummaryContext = summary.String
		out = append(out, cs)
	}
	return out, rows.Err()
}

// SetTitle updates a conversation's title if owned by userID.
func (s *Store) SetTitle(ctx context.Context, id, userID, title string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = $3, updated_at = NOW() WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID, title)
	return err
}

// SetSummary writes the carry-over digest for a newly created successor
// conversation.
func (s *Store) SetSummary(ctx context.Context, id, summary string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET summary_context = $2, updated_at = NOW() WHERE id = $1`, id, summary)
	return err
}

// Archive hides a conversation from active listing while retaining it as
// a summarization source.
func (s *Store) Archive(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE conversations SET archived_at = NOW() WHERE id = $1 AND archived_at IS NULL`, id)
	return err
}

// SoftDeleteConversation marks a conversation gone for userID; its turns
// remain queryable by administrative tooling.
func (s *Store) SoftDeleteConversation(ctx context.Context, id, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET deleted_at = NOW() WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// LoadTurns returns a conversation's turns in chronological order.
func (s *Store) LoadTurns(ctx context.Context, conversationID string) ([]models.Turn, error) {
	const q = `
		SELECT id, COALESCE(user_id::text, ''), COALESCE(session_id, ''), COALESCE(conversation_id::text, ''),
		       user_message, COALESCE(assistant_response, ''), message_length, response_length,
		       input_tokens, output_tokens, tokens_used, actual_cost_millicents,
		       success, COALESCE(error_message, ''), duration_ms, created_at
		FROM turns
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Turn
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.ID, &t.UserID, &t.SessionID, &t.ConversationID, &t.UserMessage, &t.AssistantResponse,
			&t.MessageLength, &t.ResponseLength, &t.InputTokens, &t.OutputTokens, &t.TokensUsed, &t.ActualCostMillicents,
			&t.Success, &t.ErrorMessage, &t.DurationMS, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertTurn writes a turn row. When it carries a conversation_id, the
// conversation's last_message_at and updated_at advance and its
// total_tokens grows by tokens_used, atomically with the insert — in the same
// transaction, emulating what a trigger would otherwise do.
func (s *Store) InsertTurn(ctx context.Context, t *models.Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const insertQ = `
		INSERT INTO turns (id, user_id, session_id, conversation_id, user_message, assistant_response,
		                    message_length, response_length, input_tokens, output_tokens, tokens_used,
		                    actual_cost_millicents, success, error_message, duration_ms, created_at)
		VALUES ($1, NULLIF($2,'')::uuid, NULLIF($3,''), NULLIF($4,'')::uuid, $5, NULLIF($6,''),
		        $7, $8, $9, $10, $11, $12, $13, NULLIF($14,''), $15, $16)
	`
	_, err = tx.ExecContext(ctx, insertQ, t.ID, t.UserID, t.SessionID, t.ConversationID, t.UserMessage, t.AssistantResponse,
		t.MessageLength, t.ResponseLength, t.InputTokens, t.OutputTokens, t.TokensUsed, t.ActualCostMillicents,
		t.Success, t.ErrorMessage, t.DurationMS, t.CreatedAt)
	if err != nil {
		return err
	}

	if t.ConversationID != "" {
		const updateQ = `
			UPDATE conversations
			SET last_message_at = $2, updated_at = $2, total_tokens = total_tokens + $3
			WHERE id = $1
		`
		if _, err := tx.ExecContext(ctx, updateQ, t.ConversationID, t.CreatedAt, t.TokensUsed); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// AutoTitle derives a conversation title from its opening message: trim,
// take at most 50 code points, append an ellipsis marker if truncated.
func AutoTitle(firstMessage string) string {
	runes := []rune(strings.TrimSpace(firstMessage))
	if len(runes) <= 50 {
		return string(runes)
	}
	return string(runes[:50]) + "…"
}
