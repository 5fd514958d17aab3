// Package costengine estimates pre-flight cost, reconciles post-flight
// cost from upstream-reported token counts, maintains the global-day
// spend bucket, and fires at-most-once-per-day threshold alerts.
// Monetary amounts are millicents (1/100000 of a dollar) throughout to
// avoid float drift across many small per-turn additions.
package costengine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/mtgscribe/gateway/db"
	"github.com/mtgscribe/gateway/observability"
	"github.com/mtgscribe/gateway/provider"
	"github.com/mtgscribe/gateway/redisclient"
	"github.com/rs/zerolog"
)

// Engine ties pricing, the global-day bucket, and alerting together.
type Engine struct {
	rows       *db.Store
	kv         redisclient.Store
	notifier   observability.Notifier
	logger     zerolog.Logger
	pricing    map[string]ModelPricing
	budget     int64 // GLOBAL_DAILY_BUDGET_MILLICENTS
	thresholds []int // percent, e.g. 50, 75, 90
}

func New(rows *db.Store, kv redisclient.Store, notifier observability.Notifier, logger zerolog.Logger, pricing map[string]ModelPricing, budgetMillicents int64, thresholds []int) *Engine {
	return &Engine{
		rows:       rows,
		kv:         kv,
		notifier:   notifier,
		logger:     logger.With().Str("component", "cost-engine").Logger(),
		pricing:    pricing,
		budget:     budgetMillicents,
		thresholds: thresholds,
	}
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (e *Engine) priceFor(model string) (ModelPricing, bool) {
	p, ok := e.pricing[model]
	return p, ok
}

// Estimate computes a pre-flight cost bound: input tokens are
// approximated at 1 token per 4 characters, output at the tier's max.
func (e *Engine) Estimate(msgLen, maxOutputTokens int, model string) (int64, error) {
	p, ok := e.priceFor(model)
	if !ok {
		return 0, fmt.Errorf("costengine: unknown model %q", model)
	}
	inputTokens := provider.EstimateTokensFromLength(msgLen)
	cost := float64(inputTokens)*p.inputMillicentsPerToken() + float64(maxOutputTokens)*p.outputMillicentsPerToken()
	return int64(math.Ceil(cost)), nil
}

// Reconcile computes the exact cost from upstream-reported token counts.
func (e *Engine) Reconcile(inputTokens, outputTokens int, model string) (int64, error) {
	p, ok := e.priceFor(model)
	if !ok {
		return 0, fmt.Errorf("costengine: unknown model %q", model)
	}
	cost := float64(inputTokens)*p.inputMillicentsPerToken() + float64(outputTokens)*p.outputMillicentsPerToken()
	return int64(math.Ceil(cost)), nil
}

// CanAfford reports whether today's spend plus estimate stays within
// the global daily budget.
func (e *Engine) CanAfford(ctx context.Context, estimateMillicents int64) (bool, error) {
	bucket, err := e.rows.GlobalDayCost(ctx, dayKey(time.Now()))
	if err != nil {
		return false, err
	}
	return bucket.TotalCostMillicents+estimateMillicents <= e.budget, nil
}

// Record commits one turn's cost and tokens into the global-day bucket
// (incrementing unique_users only on the user's first successful turn
// today) and evaluates threshold alerts.
func (e *Engine) Record(ctx context.Context, millicents, tokens int64, userID string) error {
	today := dayKey(time.Now())
	if err := e.rows.RecordGlobalCost(ctx, today, millicents, tokens, userID); err != nil {
		return err
	}
	return e.checkAlerts(ctx, today)
}

// checkAlerts fires each configured threshold at most once per day,
// guarded by a KV flag written with SET NX EX so concurrent requests
// crossing the same threshold in the same instant still alert once.
func (e *Engine) checkAlerts(ctx context.Context, today string) error {
	bucket, err := e.rows.GlobalDayCost(ctx, today)
	if err != nil {
		return err
	}
	if e.budget <= 0 {
		return nil
	}
	pct := float64(bucket.TotalCostMillicents) / float64(e.budget) * 100

	for _, threshold := range e.thresholds {
		if pct < float64(threshold) {
			continue
		}
		flagKey := fmt.Sprintf("budget_alert_%s_%d", today, threshold)
		armed, err := e.kv.SetNX(ctx, flagKey, "1", 24*time.Hour)
		if err != nil {
			e.logger.Warn().Err(err).Msg("failed to set budget alert flag")
			continue
		}
		if !armed {
			continue // already fired today
		}
		e.logger.Warn().Int("threshold_pct", threshold).Int64("total_cost_millicents", bucket.TotalCostMillicents).Msg("global daily budget threshold crossed")
		if e.notifier != nil {
			if err := e.notifier.TriggerAlert(observability.SeverityWarning,
				fmt.Sprintf("daily cost budget at %d%%", threshold),
				flagKey,
				map[string]interface{}{"date": today, "threshold_percent": threshold, "total_cost_millicents": bucket.TotalCostMillicents},
			); err != nil {
				e.logger.Warn().Err(err).Msg("budget alert notification failed")
			}
		}
	}
	return nil
}
