package db

import (
	"context"
	"database/sql"

	"github.com/mtgscribe/gateway/models"
)

// AddUserDayTokens atomically upserts (user_id, date), adding tokens to
// total_tokens_used and incrementing request_count by one.
func (s *Store) AddUserDayTokens(ctx context.Context, userID, date string, tokens int64) error {
	const q = `
		INSERT INTO user_day_token_buckets (user_id, date, total_tokens_used, request_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (user_id, date) DO UPDATE
		SET total_tokens_used = user_day_token_buckets.total_tokens_used + EXCLUDED.total_tokens_used,
		    request_count = user_day_token_buckets.request_count + 1
	`
	_, err := s.db.ExecContext(ctx, q, userID, date, tokens)
	return err
}

// UserDayUsage reads the current token and request totals for a user on
// date; a missing row reads as zero.
func (s *Store) UserDayUsage(ctx context.Context, userID, date string) (models.UserDayTokenBucket, error) {
	b := models.UserDayTokenBucket{UserID: userID, Date: date}
	row := s.db.QueryRowContext(ctx, `SELECT total_tokens_used, request_count FROM user_day_token_buckets WHERE user_id = $1 AND date = $2`, userID, date)
	err := row.Scan(&b.TotalTokensUsed, &b.RequestCount)
	if err == sql.ErrNoRows {
		return b, nil
	}
	return b, err
}

// RecordGlobalCost upserts the global-day bucket, adding cost/tokens and
// incrementing total_requests, and increments unique_users only the
// first time userID is seen on this date.
func (s *Store) RecordGlobalCost(ctx context.Context, date string, millicents, tokens int64, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	isNewUser := false
	if userID != "" {
		res, err := tx.ExecContext(ctx, `INSERT INTO global_day_seen_users (date, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, date, userID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		isNewUser = n > 0
	}

	uniqueDelta := 0
	if isNewUser {
		uniqueDelta = 1
	}
	const q = `
		INSERT INTO global_day_cost_buckets (date, total_cost_millicents, total_requests, total_tokens, unique_users)
		VALUES ($1, $2, 1, $3, $4)
		ON CONFLICT (date) DO UPDATE
		SET total_cost_millicents = global_day_cost_buckets.total_cost_millicents + EXCLUDED.total_cost_millicents,
		    total_requests = global_day_cost_buckets.total_requests + 1,
		    total_tokens = global_day_cost_buckets.total_tokens + EXCLUDED.total_tokens,
		    unique_users = global_day_cost_buckets.unique_users + $4
	`
	if _, err := tx.ExecContext(ctx, q, date, millicents, tokens, uniqueDelta); err != nil {
		return err
	}
	return tx.Commit()
}

// GlobalDayCost reads today's bucket; a missing row reads as zero.
func (s *Store) GlobalDayCost(ctx context.Context, date string) (models.GlobalDayCostBucket, error) {
	b := models.GlobalDayCostBucket{Date: date}
	row := s.db.QueryRowContext(ctx, `SELECT total_cost_millicents, total_requests, total_tokens, unique_users FROM global_day_cost_buckets WHERE date = $1`, date)
	err := row.Scan(&b.TotalCostMillicents, &b.TotalRequests, &b.TotalTokens, &b.UniqueUsers)
	if err == sql.ErrNoRows {
		return b, nil
	}
	return b, err
}
