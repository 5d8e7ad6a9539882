package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"membercheck/internal/engine/ratelimit"
)

type HealthHandler struct {
	db        *sql.DB
	rateStore ratelimit.WindowStore
}

func NewHealthHandler(db *sql.DB, rateStore ratelimit.WindowStore) *HealthHandler {
	return &HealthHandler{db: db, rateStore: rateStore}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := h.db.PingContext(r.Context()); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
	} else {
		checks["database"] = "healthy"
	}

	if pinger, ok := h.rateStore.(interface{ Ping(ctx context.Context) error }); ok {
		if err := pinger.Ping(r.Context()); err != nil {
			checks["rate_limit_store"] = "unhealthy: " + err.Error()
		} else {
			checks["rate_limit_store"] = "healthy"
		}
	} else {
		checks["rate_limit_store"] = "healthy"
	}

	status := "healthy"
	for _, check := range checks {
		if strings.HasPrefix(check, "unhealthy") {
			status = "degraded"
			break
		}
	}

	response := struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Checks    map[string]string `json:"checks"`
	}{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}
