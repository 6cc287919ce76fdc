package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/search", "GET", 200, time.Millisecond)
	m.RecordRequest("/search", "GET", 200, time.Millisecond)
	m.RecordError("/tickets", "POST", "VALIDATION_FAILED")
	m.RecordTransition("OPEN", "IN_PROGRESS")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/search|GET|200"])
	assert.Equal(t, int64(1), snap.Errors["/tickets|POST|VALIDATION_FAILED"])
	assert.Equal(t, int64(1), snap.Transitions["OPEN->IN_PROGRESS"])

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.RecordTransition("a", "b") })
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	metrics := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.NewNop(), metrics))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.Header.Get(RequestIDHeader))
	assert.Equal(t, int64(1), metrics.Snapshot().Requests["/ping|GET|204"])

	resp, err = app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
}
