// Package tokenledger tracks per-user-per-day token and request counts,
// split out of the cost engine's metering concerns: the ledger answers
// "how much has this user used today", the cost engine answers "what
// does the gateway owe today".
package tokenledger

import (
	"context"
	"time"

	"github.com/mtgscribe/gateway/db"
)

type Ledger struct {
	rows *db.Store
}

func New(rows *db.Store) *Ledger {
	return &Ledger{rows: rows}
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Add atomically upserts (userID, today), adding tokens and incrementing
// the request count by one. Idempotent add-on-success is the caller's
// responsibility — Add is called exactly once per successful turn.
func (l *Ledger) Add(ctx context.Context, userID string, tokens int64) error {
	if userID == "" {
		return nil
	}
	return l.rows.AddUserDayTokens(ctx, userID, dayKey(time.Now()), tokens)
}

// UsageToday returns the user's token usage so far today.
func (l *Ledger) UsageToday(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, nil
	}
	b, err := l.rows.UserDayUsage(ctx, userID, dayKey(time.Now()))
	if err != nil {
		return 0, err
	}
	return b.TotalTokensUsed, nil
}

// RequestsToday returns the user's request count so far today.
func (l *Ledger) RequestsToday(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, nil
	}
	b, err := l.rows.UserDayUsage(ctx, userID, dayKey(time.Now()))
	if err != nil {
		return 0, err
	}
	return b.RequestCount, nil
}
