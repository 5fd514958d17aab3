package provider

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HealthStatus is the upstream's last-known reachability.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency_ms"`
	LastCheck time.Time     `json:"last_check"`
	Error     string        `json:"error,omitempty"`
}

// HealthPoller periodically checks the one upstream's reachability in
// the background, so a degraded upstream is visible on /health before
// it shows up as a wave of failed chat turns.
type HealthPoller struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	interval   time.Duration

	mu     sync.RWMutex
	status HealthStatus

	cancel context.CancelFunc
	done   chan struct{}
}

func NewHealthPoller(baseURL string, httpClient *http.Client, logger zerolog.Logger, interval time.Duration) *HealthPoller {
	if interval < 5*time.Second {
		interval = 5 * time.Second
	}
	return &HealthPoller{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "provider-health").Logger(),
		interval:   interval,
		done:       make(chan struct{}),
	}
}

func (hp *HealthPoller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	hp.cancel = cancel
	go hp.pollLoop(ctx)
}

func (hp *HealthPoller) Stop() {
	if hp.cancel != nil {
		hp.cancel()
	}
	<-hp.done
}

func (hp *HealthPoller) pollLoop(ctx context.Context) {
	defer close(hp.done)
	hp.check(ctx)

	ticker := time.NewTicker(hp.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hp.check(ctx)
		}
	}
}

func (hp *HealthPoller) check(ctx context.Context) {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, hp.baseURL+"/models", nil)
	if err != nil {
		hp.record(HealthStatus{Healthy: false, LastCheck: start, Error: err.Error()})
		return
	}

	resp, err := hp.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		hp.record(HealthStatus{Healthy: false, Latency: latency, LastCheck: start, Error: err.Error()})
		return
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode < 500
	status := HealthStatus{Healthy: healthy, Latency: latency, LastCheck: start}
	if !healthy {
		status.Error = resp.Status
	}
	hp.record(status)
}

func (hp *HealthPoller) record(s HealthStatus) {
	hp.mu.Lock()
	prev := hp.status
	hp.status = s
	hp.mu.Unlock()
	if prev.Healthy != s.Healthy {
		hp.logger.Warn().Bool("healthy", s.Healthy).Str("error", s.Error).Msg("upstream health transition")
	}
}

// Status returns the last-known health snapshot.
func (hp *HealthPoller) Status() HealthStatus {
	hp.mu.RLock()
	defer hp.mu.RUnlock()
	return hp.status
}
