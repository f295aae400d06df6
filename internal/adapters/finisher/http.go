package finisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/interop/jobgather/internal/core"
	"github.com/interop/jobgather/internal/util"
)

// HTTPOptions configures HTTPFinisher.
type HTTPOptions struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	Client  *http.Client
	Now     func() time.Time
}

// HTTPFinisher posts a "job finished" message to a downstream endpoint, one attempt per call.
// Retries belong to the caller.
type HTTPFinisher struct {
	url     string
	headers map[string]string
	client  *http.Client
	now     func() time.Time
}

var _ core.Finisher = (*HTTPFinisher)(nil)

// NewHTTPFinisher validates options and returns a finisher.
func NewHTTPFinisher(opts HTTPOptions) (*HTTPFinisher, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, errors.New("finisher url is required")
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &HTTPFinisher{url: url, headers: opts.Headers, client: client, now: now}, nil
}

// NotifyJobFinished posts {job_id, finished_at}. Non-2xx responses return *util.HTTPStatusError.
func (f *HTTPFinisher) NotifyJobFinished(ctx context.Context, jobID string) error {
	body, err := json.Marshal(Message{JobID: jobID, FinishedAt: f.now().UTC()})
	if err != nil {
		return fmt.Errorf("encode finished message: %w", err)
	}
	return util.PostJSON(ctx, f.client, "finisher", f.url, body, f.headers)
}
