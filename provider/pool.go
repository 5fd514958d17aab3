package provider

import (
	"net"
	"net/http"
	"sync/atomic"
	"time"
)

// PoolConfig tunes the single shared HTTP transport this gateway keeps
// open to its one upstream. With only one provider there is no
// per-provider map to manage — just the one transport's connection
// reuse settings.
type PoolConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	DialTimeout         time.Duration
	KeepAlive           time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		KeepAlive:           30 * time.Second,
	}
}

// Metrics tracks connection-pool utilization for the one upstream.
type Metrics struct {
	TotalRequests    int64
	TotalErrors      int64
	ConnectionReuses int64
}

// NewTransport builds the shared *http.Transport, wrapped in a
// RoundTripper that updates m on every call.
func NewTransport(cfg PoolConfig, m *Metrics) http.RoundTripper {
	dialer := &net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: cfg.KeepAlive}
	inner := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}
	return &metricsRoundTripper{inner: inner, metrics: m}
}

// NewHTTPClient wraps NewTransport's transport in a *http.Client with
// the given overall timeout (callers also set a tighter per-call
// context deadline; this is the outer safety net).
func NewHTTPClient(cfg PoolConfig, timeout time.Duration, m *Metrics) *http.Client {
	return &http.Client{Transport: NewTransport(cfg, m), Timeout: timeout}
}

type metricsRoundTripper struct {
	inner   http.RoundTripper
	metrics *Metrics
}

func (m *metricsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt64(&m.metrics.TotalRequests, 1)
	resp, err := m.inner.RoundTrip(req)
	if err != nil {
		atomic.AddInt64(&m.metrics.TotalErrors, 1)
		return nil, err
	}
	if !resp.Close {
		atomic.AddInt64(&m.metrics.ConnectionReuses, 1)
	}
	return resp, nil
}
