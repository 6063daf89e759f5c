package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(RepliesTotal.WithLabelValues("ok"))
	RepliesTotal.WithLabelValues("ok").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RepliesTotal.WithLabelValues("ok")))

	ActiveSessions.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(ActiveSessions))
}

func TestHandler(t *testing.T) {
	EventsTotal.WithLabelValues("line", "text").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `linebot_events_total{channel="line",kind="text"}`)
}
