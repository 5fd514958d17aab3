package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/mtgscribe/gateway/db"
	gwmw "github.com/mtgscribe/gateway/middleware"
	"github.com/mtgscribe/gateway/provider"
	"github.com/mtgscribe/gateway/redisclient"
)

// HealthHandler answers GET /health — liveness plus a best-effort
// readiness check of the row store, KV store, and upstream.
type HealthHandler struct {
	rows *db.Store
	kv   redisclient.Store
	poll *provider.HealthPoller
}

func NewHealthHandler(rows *db.Store, kv redisclient.Store, poll *provider.HealthPoller) *HealthHandler {
	return &HealthHandler{rows: rows, kv: kv, poll: poll}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rowsOK := h.rows.Ping(ctx) == nil

	kvOK := true
	if _, err := h.kv.Incr(ctx, "health_check_probe", time.Minute); err != nil {
		kvOK = false
	}

	upstream := h.poll.Status()

	healthy := rowsOK && kvOK && upstream.Healthy
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	statusText := "ok"
	if !healthy {
		statusText = "degraded"
	}

	gwmw.WriteJSON(w, status, map[string]interface{}{
		"status":   statusText,
		"rows":     rowsOK,
		"kv":       kvOK,
		"upstream": upstream.Healthy,
	})
}
