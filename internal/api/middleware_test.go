package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRateLimitAdmitsRequestsAtLowRates(t *testing.T) {
	m := NewMiddleware(zap.NewNop().Sugar(), nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, rpm := range []int{1, 5} {
		h := m.RateLimit(rpm)(ok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/catalog", nil))
		assert.Equal(t, http.StatusOK, rec.Code, "rpm=%d must admit the first request", rpm)
	}
}

func TestRateLimitRejectsPastBurst(t *testing.T) {
	m := NewMiddleware(zap.NewNop().Sugar(), nil)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := m.RateLimit(1)(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/catalog", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Burst of one: an immediate second request exceeds the budget.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/catalog", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
