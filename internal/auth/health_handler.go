// health_handler.go -- GET /api/health and the GET / service banner.
package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/MGallo-Code/weddingkityaari/internal/httpx"
	"github.com/MGallo-Code/weddingkityaari/internal/store"
)

// CheckHealth handles GET /api/health -- pings the store and Redis, returns per-dependency status.
// 503 only when the store is down; Redis is optional.
func (h *AuthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	storeStatus := "ok"
	redisStatus := "ok"

	if err := h.ID.PS.CheckHealth(r.Context()); err != nil {
		httpx.LogError(r, "store health check failed", "error", err)
		storeStatus = "error"
	}
	if err := h.ID.RL.CheckHealth(r.Context()); err != nil {
		if errors.Is(err, store.ErrCacheDisabled) {
			redisStatus = "disabled"
		} else {
			httpx.LogError(r, "redis health check failed", "error", err)
			redisStatus = "error"
		}
	}

	status, code := "healthy", http.StatusOK
	if storeStatus == "error" {
		status, code = "unhealthy", http.StatusServiceUnavailable
	} else if redisStatus == "error" {
		status = "degraded"
	}

	httpx.JSON(w, code, struct {
		Status    string  `json:"status"`
		Timestamp string  `json:"timestamp"`
		Uptime    float64 `json:"uptime"`
		Store     string  `json:"store"`
		Redis     string  `json:"redis"`
	}{status, time.Now().UTC().Format(time.RFC3339), time.Since(h.StartedAt).Seconds(), storeStatus, redisStatus})
}

// Root handles GET / with a short service banner listing the API groups.
func (h *AuthHandler) Root(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, struct {
		Message   string            `json:"message"`
		Version   string            `json:"version"`
		Status    string            `json:"status"`
		Endpoints map[string]string `json:"endpoints"`
	}{
		Message: "WeddingKiTyaari Backend API",
		Version: h.Version,
		Status:  "running",
		Endpoints: map[string]string{
			"auth":   "/api/auth",
			"chat":   "/api/chat",
			"ai":     "/api/ai",
			"health": "/api/health",
		},
	})
}
