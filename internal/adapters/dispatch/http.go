// Package dispatch sends fan-out requests to external targets.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/interop/jobgather/internal/core"
	"github.com/interop/jobgather/internal/domain/model"
	"github.com/interop/jobgather/internal/util"
)

// HTTPOptions configures HTTPDispatcher.
type HTTPOptions struct {
	Headers map[string]string
	Timeout time.Duration
	Policy  util.RetryPolicy
	Client  *http.Client
}

// HTTPDispatcher posts each chunk as JSON to its target endpoint. The target answers
// asynchronously by writing result records under the parent request id.
type HTTPDispatcher struct {
	headers map[string]string
	policy  util.RetryPolicy
	client  *http.Client
}

var _ core.Dispatcher = (*HTTPDispatcher)(nil)

// NewHTTPDispatcher returns a dispatcher.
func NewHTTPDispatcher(opts HTTPOptions) *HTTPDispatcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPDispatcher{headers: opts.Headers, policy: opts.Policy, client: client}
}

// Dispatch posts req to req.Target.Endpoint.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, req model.FanoutRequest) error {
	endpoint := strings.TrimSpace(req.Target.Endpoint)
	if endpoint == "" {
		return errors.New("target endpoint is empty")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode fan-out request: %w", err)
	}
	headers := make(map[string]string, len(d.headers)+1)
	for k, v := range d.headers {
		headers[k] = v
	}
	headers["Idempotency-Key"] = req.RequestChunkID

	_, err = util.PostJSONWithRetry(ctx, d.client, d.policy, "target "+req.Target.ID, endpoint, body, headers)
	return err
}
