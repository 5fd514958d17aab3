// Package observability is the gateway's out-of-band alerting and
// metrics surface: a PagerDuty Events API v2 client for budget-threshold
// alerts, and Prometheus counters for request/token/cost volume.
package observability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// PagerDutyConfig configures the Events API v2 client.
type PagerDutyConfig struct {
	RoutingKey  string
	Enabled     bool
	SourceName  string
	HTTPTimeout time.Duration
}

func DefaultPagerDutyConfig() PagerDutyConfig {
	return PagerDutyConfig{
		SourceName:  "mtg-gateway",
		HTTPTimeout: 10 * time.Second,
	}
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Notifier is the out-of-band alerting contract the cost engine depends
// on, so it can be faked in tests.
type Notifier interface {
	TriggerAlert(severity Severity, summary, dedupKey string, details map[string]interface{}) error
}

// PagerDutyClient sends incidents to PagerDuty Events API v2.
type PagerDutyClient struct {
	cfg    PagerDutyConfig
	client *http.Client
	logger zerolog.Logger
}

const pagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

func NewPagerDutyClient(cfg PagerDutyConfig, logger zerolog.Logger) *PagerDutyClient {
	return &PagerDutyClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		logger: logger.With().Str("component", "pagerduty").Logger(),
	}
}

// TriggerAlert fires a PagerDuty alert. When the client is disabled
// (no routing key configured), it logs and returns nil — callers should
// not treat a disabled notifier as a failure.
func (pd *PagerDutyClient) TriggerAlert(severity Severity, summary, dedupKey string, details map[string]interface{}) error {
	if !pd.cfg.Enabled || pd.cfg.RoutingKey == "" {
		pd.logger.Info().Str("summary", summary).Str("dedup_key", dedupKey).Msg("alert suppressed: pagerduty not configured")
		return nil
	}

	payload := map[string]interface{}{
		"routing_key":  pd.cfg.RoutingKey,
		"event_action": "trigger",
		"dedup_key":    dedupKey,
		"payload": map[string]interface{}{
			"summary":        summary,
			"severity":       string(severity),
			"source":         pd.cfg.SourceName,
			"component":      "cost-engine",
			"timestamp":      time.Now().UTC().Format(time.RFC3339),
			"custom_details": details,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pagerduty: marshal alert: %w", err)
	}

	resp, err := pd.client.Post(pagerDutyEventsURL, "application/json", bytes.NewReader(body))
	if err != nil {
		pd.logger.Error().Err(err).Str("dedup_key", dedupKey).Msg("pagerduty call failed")
		return fmt.Errorf("pagerduty: request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		pd.logger.Error().Int("status", resp.StatusCode).Str("dedup_key", dedupKey).Msg("pagerduty returned an error")
		return fmt.Errorf("pagerduty: HTTP %d", resp.StatusCode)
	}

	pd.logger.Info().Str("dedup_key", dedupKey).Str("severity", string(severity)).Msg("pagerduty alert triggered")
	return nil
}

// AlertBudgetThreshold fires when the global daily budget crosses a
// configured percentage.
func (pd *PagerDutyClient) AlertBudgetThreshold(pct int, date string, totalMillicents int64) error {
	return pd.TriggerAlert(
		SeverityWarning,
		fmt.Sprintf("mtg-gateway: daily cost budget at %d%%", pct),
		fmt.Sprintf("budget-threshold-%s-%d", date, pct),
		map[string]interface{}{
			"date":                date,
			"threshold_percent":   pct,
			"total_cost_millicents": totalMillicents,
		},
	)
}
