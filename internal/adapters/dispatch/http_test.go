package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interop/jobgather/internal/domain/model"
	"github.com/interop/jobgather/internal/util"
)

func TestHTTPDispatcher_Dispatch(t *testing.T) {
	var got model.FanoutRequest
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-1_0", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "gw", r.Header.Get("X-Caller"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(HTTPOptions{
		Headers: map[string]string{"X-Caller": "gw"},
		Policy:  util.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
		Client:  srv.Client(),
	})
	req := model.FanoutRequest{
		ParentRequestID: "req-1",
		RequestChunkID:  "req-1_0",
		Target:          model.Target{ID: "alpha", Endpoint: srv.URL},
		Items:           []model.WorkItem{{Key: "doc-1"}},
	}
	require.NoError(t, d.Dispatch(context.Background(), req))
	assert.Equal(t, req, got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPDispatcher_RequiresEndpoint(t *testing.T) {
	d := NewHTTPDispatcher(HTTPOptions{})
	err := d.Dispatch(context.Background(), model.FanoutRequest{Target: model.Target{ID: "alpha"}})
	require.Error(t, err)
}
