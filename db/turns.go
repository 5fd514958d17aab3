package db

import (
	"context"

	"github.com/mtgscribe/gateway/models"
)

// TurnStats is the day's request count and success rate for one user,
// backing GET /api/chat/stats.
type TurnStats struct {
	TotalRequests int64
	SuccessCount  int64
}

// SuccessRate returns the fraction of today's requests that succeeded,
// or 1.0 when the user has made no requests yet today.
func (s TurnStats) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 1.0
	}
	return float64(s.SuccessCount) / float64(s.TotalRequests)
}

// UserTurnStatsToday aggregates today's turns for userID, across every
// conversation (and conversation-less anonymous-style turns do not
// apply here since userID is always set for an authenticated caller).
func (s *Store) UserTurnStatsToday(ctx context.Context, userID string) (TurnStats, error) {
	var stats TurnStats
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE success)
		FROM turns
		WHERE user_id = $1 AND created_at >= date_trunc('day', NOW() AT TIME ZONE 'UTC')
	`, userID)
	err := row.Scan(&stats.TotalRequests, &stats.SuccessCount)
	return stats, err
}

// ListUserTurns returns a user's most recent turns, newest first, for
// the history endpoint — metadata only, no message/response content.
func (s *Store) ListUserTurns(ctx context.Context, userID string, limit int) ([]models.Turn, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(conversation_id::text, ''), message_length, COALESCE(response_length, 0),
		       COALESCE(tokens_used, 0), COALESCE(actual_cost_millicents, 0), success, duration_ms, created_at
		FROM turns
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Turn
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.MessageLength, &t.ResponseLength,
			&t.TokensUsed, &t.ActualCostMillicents, &t.Success, &t.DurationMS, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.UserID = userID
		out = append(out, t)
	}
	return out, rows.Err()
}
