package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failing(msg string) CheckFunc {
	return func(ctx context.Context) error { return errors.New(msg) }
}

func passing(ctx context.Context) error { return nil }

func TestHealthChecker_Check(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(h *HealthChecker)
		status string
	}{
		{
			name:   "no dependencies",
			setup:  func(h *HealthChecker) {},
			status: StatusHealthy,
		},
		{
			name: "all passing",
			setup: func(h *HealthChecker) {
				h.AddCheck("database", true, passing).AddCheck("redis", false, passing)
			},
			status: StatusHealthy,
		},
		{
			name: "optional dependency down",
			setup: func(h *HealthChecker) {
				h.AddCheck("database", true, passing).AddCheck("redis", false, failing("refused"))
			},
			status: StatusDegraded,
		},
		{
			name: "critical dependency down",
			setup: func(h *HealthChecker) {
				h.AddCheck("database", true, failing("refused")).AddCheck("redis", false, failing("refused"))
			},
			status: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker("test")
			tt.setup(h)
			got := h.Check(context.Background())
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, "test", got.Version)
		})
	}
}

func TestHealthChecker_ReadinessReturns503(t *testing.T) {
	h := NewHealthChecker("test").AddCheck("database", true, failing("connection refused"))

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "connection refused", body.Dependencies["database"].Message)
}

func TestHealthChecker_Liveness(t *testing.T) {
	h := NewHealthChecker("test").AddCheck("database", true, failing("down"))

	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, h)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDatabaseCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	assert.NoError(t, DatabaseCheck(db)(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	assert.NoError(t, RedisCheck(client)(context.Background()))

	mr.Close()
	assert.Error(t, RedisCheck(client)(context.Background()))
}
