// Package analytics is the gateway's audit event pipeline: async,
// buffered, batched delivery of injection rejections, budget alerts, and
// turn completions — off the request path, with backpressure that drops
// rather than blocks when the sink falls behind.
package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// EventKind classifies an audit event.
type EventKind string

const (
	EventTurnCompleted    EventKind = "turn_completed"
	EventInjectionRejected EventKind = "injection_rejected"
	EventBudgetAlert      EventKind = "budget_alert"
)

// Event is one audit record. Fields not relevant to a given Kind are
// left zero.
type Event struct {
	Kind                 EventKind `json:"kind"`
	RequestID            string    `json:"request_id"`
	UserID               string    `json:"user_id,omitempty"`
	ConversationID       string    `json:"conversation_id,omitempty"`
	Tier                 string    `json:"tier,omitempty"`
	Success              bool      `json:"success,omitempty"`
	TokensUsed           int       `json:"tokens_used,omitempty"`
	CostMillicents       int64     `json:"cost_millicents,omitempty"`
	InjectionFamily      string    `json:"injection_family,omitempty"`
	BudgetThresholdPct   int       `json:"budget_threshold_pct,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// Sink delivers a batch of events; implementations must not block
// indefinitely — the pipeline gives up on Stop after a single attempt.
type Sink interface {
	Write(ctx context.Context, events []Event) error
	Close() error
}

// PipelineConfig controls batching and backpressure.
type PipelineConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Workers       int
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BufferSize:    10000,
		BatchSize:     200,
		FlushInterval: 5 * time.Second,
		Workers:       2,
	}
}

// Pipeline is the async audit ingestion engine: requests are submitted
// non-blockingly and dropped (counted, logged) if the buffer is full,
// so a slow or down sink never adds latency to a chat turn.
type Pipeline struct {
	logger zerolog.Logger
	config PipelineConfig
	sink   Sink

	eventCh chan Event
	wg      sync.WaitGroup
	cancel  context.CancelFunc

	received int64
	written  int64
	dropped  int64
}

func NewPipeline(logger zerolog.Logger, sink Sink, config ...PipelineConfig) *Pipeline {
	cfg := DefaultPipelineConfig()
	if len(config) > 0 {
		cfg = config[0]
	}
	return &Pipeline{
		logger:  logger.With().Str("component", "audit-pipeline").Logger(),
		config:  cfg,
		sink:    sink,
		eventCh: make(chan Event, cfg.BufferSize),
	}
}

// Start launches the flush workers.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info().Int("workers", p.config.Workers).Int("buffer_size", p.config.BufferSize).Msg("audit pipeline started")
}

// Stop gracefully shuts down the pipeline, flushing whatever remains.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.drain()
	if p.sink != nil {
		_ = p.sink.Close()
	}
	p.logger.Info().
		Int64("received", atomic.LoadInt64(&p.received)).
		Int64("written", atomic.LoadInt64(&p.written)).
		Int64("dropped", atomic.LoadInt64(&p.dropped)).
		Msg("audit pipeline stopped")
}

// Track submits an event to the pipeline. Non-blocking: the event is
// dropped if the buffer is full.
func (p *Pipeline) Track(e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	select {
	case p.eventCh <- e:
		atomic.AddInt64(&p.received, 1)
	default:
		atomic.AddInt64(&p.dropped, 1)
		p.logger.Warn().Str("kind", string(e.Kind)).Str("request_id", e.RequestID).Msg("audit event dropped: buffer full")
	}
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, p.config.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := p.sink.Write(ctx, batch); err != nil {
			p.logger.Warn().Err(err).Int("count", len(batch)).Msg("audit flush failed")
		} else {
			atomic.AddInt64(&p.written, int64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// ctx is already cancelled, so the in-hand batch is written with
			// a fresh context; Stop's drain only covers events still queued.
			ctx = context.Background()
			flush()
			return
		case e := <-p.eventCh:
			batch = append(batch, e)
			if len(batch) >= p.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (p *Pipeline) drain() {
	batch := make([]Event, 0, p.config.BatchSize)
	for {
		select {
		case e := <-p.eventCh:
			batch = append(batch, e)
		default:
			if len(batch) > 0 {
				_ = p.sink.Write(context.Background(), batch)
			}
			return
		}
	}
}

// LogSink writes events through the structured logger — the default
// sink until a real analytics warehouse is wired in.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit-log-sink").Logger()}
}

func (s *LogSink) Write(_ context.Context, events []Event) error {
	for _, e := range events {
		s.logger.Info().
			Str("kind", string(e.Kind)).
			Str("request_id", e.RequestID).
			Str("user_id", e.UserID).
			Str("tier", e.Tier).
			Bool("success", e.Success).
			Int("tokens_used", e.TokensUsed).
			Int64("cost_millicents", e.CostMillicents).
			Str("injection_family", e.InjectionFamily).
			Int("budget_threshold_pct", e.BudgetThresholdPct).
			Time("created_at", e.CreatedAt).
			Msg("audit event")
	}
	return nil
}

func (s *LogSink) Close() error { return nil }
