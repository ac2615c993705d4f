package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"utilbill-backend/internal/metrics"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newRouter(pinger Pinger) (*mux.Router, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	router := mux.NewRouter()
	RegisterOpsRoutes(router, NewOpsHandler(pinger, reg))
	return router, m
}

func TestOpsHandler_Health(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		router, _ := newRouter(stubPinger{})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("Database down", func(t *testing.T) {
		router, _ := newRouter(stubPinger{err: errors.New("connection refused")})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
	})
}

func TestOpsHandler_Metrics(t *testing.T) {
	router, m := newRouter(stubPinger{})
	m.BillGenerated(metrics.ResultOK)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `utilbill_bills_generated_total{result="ok"} 1`)
}

func TestOpsHandler_MethodNotAllowed(t *testing.T) {
	router, _ := newRouter(stubPinger{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
