package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"utilbill-backend/internal/logger"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsHandler serves health and metrics endpoints for the billing processes
type OpsHandler struct {
	db       Pinger
	gatherer prometheus.Gatherer
}

func NewOpsHandler(db Pinger, gatherer prometheus.Gatherer) *OpsHandler {
	return &OpsHandler{db: db, gatherer: gatherer}
}

// HandleHealth pings the database within a short deadline
func (h *OpsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	if err := h.db.Ping(ctx); err != nil {
		logger.Warn("Health check failed", "error", err)
		status = http.StatusServiceUnavailable
		body = map[string]string{"status": "unavailable", "error": err.Error()}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// RegisterOpsRoutes registers /healthz and /metrics
func RegisterOpsRoutes(router *mux.Router, h *OpsHandler) {
	router.HandleFunc("/healthz", h.HandleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods("GET")
}

// NewOpsServer builds the ops HTTP server on addr
func NewOpsServer(addr string, h *OpsHandler) *http.Server {
	router := mux.NewRouter()
	RegisterOpsRoutes(router, h)
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
