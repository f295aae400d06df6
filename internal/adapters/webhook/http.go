// Package webhook delivers job status changes to customer endpoints.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/interop/jobgather/internal/core"
	"github.com/interop/jobgather/internal/domain/model"
	"github.com/interop/jobgather/internal/util"
)

// Config configures HTTPSink.
type Config struct {
	URL     string
	Headers map[string]string
	// BodyExpr is an optional JMESPath expression applied to the status change before sending.
	BodyExpr   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

type searcher interface {
	Search(data any) (any, error)
}

// HTTPSink posts status changes as JSON, retrying 5xx/429 and transport errors.
type HTTPSink struct {
	url     string
	headers map[string]string
	expr    searcher
	policy  util.RetryPolicy
	client  *http.Client
}

var _ core.WebhookSink = (*HTTPSink)(nil)

// NewHTTPSink builds a sink and compiles BodyExpr.
func NewHTTPSink(cfg Config) (*HTTPSink, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("webhook url is required")
	}
	s := &HTTPSink{
		url:     url,
		headers: cfg.Headers,
		policy:  util.RetryPolicy{MaxAttempts: max(cfg.RetryLimit, 0) + 1},
		client:  cfg.Client,
	}
	if expr := strings.TrimSpace(cfg.BodyExpr); expr != "" {
		compiled, err := jmespath.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile webhook body expression: %w", err)
		}
		s.expr = compiled
	}
	if s.client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		s.client = &http.Client{Timeout: timeout}
	}
	return s, nil
}

// SendStatusChange renders and posts change.
func (s *HTTPSink) SendStatusChange(ctx context.Context, change model.StatusChange) error {
	body, err := s.render(change)
	if err != nil {
		return err
	}
	_, err = util.PostJSONWithRetry(ctx, s.client, s.policy, "status webhook", s.url, body, s.headers)
	return err
}

func (s *HTTPSink) render(change model.StatusChange) ([]byte, error) {
	raw, err := json.Marshal(change)
	if err != nil {
		return nil, fmt.Errorf("encode status change: %w", err)
	}
	if s.expr == nil {
		return raw, nil
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode status change: %w", err)
	}
	shaped, err := s.expr.Search(doc)
	if err != nil {
		return nil, fmt.Errorf("evaluate webhook body expression: %w", err)
	}
	out, err := json.Marshal(shaped)
	if err != nil {
		return nil, fmt.Errorf("encode webhook body: %w", err)
	}
	return out, nil
}
