package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interop/jobgather/internal/observability/notify"
)

func TestNewClientRequiresRoutingKey(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestBuildEvent(t *testing.T) {
	c, err := NewClient(Config{RoutingKey: "rk"})
	require.NoError(t, err)

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := c.buildEvent(notify.AnomalyPayload{
		Kind:       notify.KindStuckJob,
		JobID:      "job-7",
		OccurredAt: at,
		Metadata:   map[string]string{"idle": "2h", "job_id": "ignored"},
	})

	assert.Equal(t, "rk", ev["routing_key"])
	assert.Equal(t, "stuck_job:job-7", ev["dedup_key"])
	payload, ok := ev["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "critical", payload["severity"])
	assert.Equal(t, "stuck_job on job job-7", payload["summary"])
	assert.Equal(t, "2024-03-01T10:00:00Z", payload["timestamp"])
	custom, ok := payload["custom_details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "job-7", custom["job_id"])
	assert.Equal(t, "2h", custom["idle"])
}

func TestSendAnomalyPostsToEndpoint(t *testing.T) {
	received := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		received <- body
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := NewClient(Config{RoutingKey: "rk", Endpoint: srv.URL})
	require.NoError(t, err)
	require.NoError(t, c.SendAnomaly(context.Background(), notify.AnomalyPayload{
		Kind:     notify.KindMappingMissing,
		Severity: "WARNING",
	}))

	body := <-received
	assert.Equal(t, "mapping_missing", body["dedup_key"])
	payload, _ := body["payload"].(map[string]any)
	assert.Equal(t, "warning", payload["severity"])
}
