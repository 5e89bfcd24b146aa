package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/vegbox-admin/api/internal/domain"
	"github.com/vegbox-admin/api/internal/services"
)

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(30 * time.Second)
	handlers := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{
			Version:     "1.0.0",
			CommitSHA:   "abc123",
			Environment: "prod",
			StartedAt:   start,
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	rec := httptest.NewRecorder()
	handlers.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, "1.0.0", body["version"])
	require.Equal(t, "abc123", body["commitSha"])
	require.Equal(t, "prod", body["environment"])
	require.Equal(t, "30s", body["uptime"])
	require.Equal(t, "2024-01-01T00:00:30Z", body["timestamp"])
}

func TestHealthHandlersReadyz(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)

	cases := []struct {
		name   string
		status domain.HealthStatus
		code   int
	}{
		{name: "ok", status: domain.HealthStatusOK, code: http.StatusOK},
		{name: "degraded", status: domain.HealthStatusDegraded, code: http.StatusOK},
		{name: "error", status: domain.HealthStatusError, code: http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubSystemService{report: services.SystemHealthReport{
				Status:      tc.status,
				Version:     "1.0.0",
				Uptime:      time.Minute,
				GeneratedAt: now,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: tc.status, Latency: 12 * time.Millisecond, CheckedAt: now},
				},
			}}
			handlers := NewHealthHandlers(WithHealthSystemService(svc), WithHealthClock(func() time.Time { return now }))

			rec := httptest.NewRecorder()
			handlers.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			require.Equal(t, tc.code, rec.Code)
			body := decodeBody(t, rec)
			require.Equal(t, string(tc.status), body["status"])
			require.Equal(t, "1m0s", body["uptime"])
			check := body["checks"].(map[string]any)["firestore"].(map[string]any)
			require.Equal(t, float64(12), check["latencyMs"])
		})
	}
}

func TestHealthHandlersReadyzServiceError(t *testing.T) {
	handlers := NewHealthHandlers(WithHealthSystemService(&stubSystemService{err: errors.New("firestore down")}))

	rec := httptest.NewRecorder()
	handlers.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "unavailable", decodeBody(t, rec)["error"])
}
