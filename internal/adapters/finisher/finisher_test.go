package finisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interop/jobgather/internal/util"
)

var fixedNow = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }

type fakePublishChannel struct {
	declared   []string
	published  []amqp.Publishing
	keys       []string
	publishErr error
	closed     int
}

func (c *fakePublishChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.declared = append(c.declared, name+":"+kind)
	return nil
}

func (c *fakePublishChannel) PublishWithContext(
	_ context.Context,
	exchange, key string,
	_, _ bool,
	msg amqp.Publishing,
) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.keys = append(c.keys, exchange+"/"+key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakePublishChannel) Close() error {
	c.closed++
	return nil
}

func TestAMQPPublisher_Publishes(t *testing.T) {
	ch := &fakePublishChannel{}
	opens := 0
	p, err := NewAMQPPublisher(AMQPOptions{
		Open:       func() (PublishChannel, error) { opens++; return ch, nil },
		Exchange:   "interop.jobs",
		RoutingKey: "job.finished",
		Now:        fixedNow,
	})
	require.NoError(t, err)

	require.NoError(t, p.NotifyJobFinished(context.Background(), "job-1"))
	require.NoError(t, p.NotifyJobFinished(context.Background(), "job-2"))

	assert.Equal(t, 1, opens, "channel is reused")
	assert.Equal(t, []string{"interop.jobs:topic"}, ch.declared)
	assert.Equal(t, []string{"interop.jobs/job.finished", "interop.jobs/job.finished"}, ch.keys)

	msg := ch.published[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "job-1", msg.MessageId)
	var body Message
	require.NoError(t, json.Unmarshal(msg.Body, &body))
	assert.Equal(t, Message{JobID: "job-1", FinishedAt: fixedNow()}, body)

	require.NoError(t, p.Close())
	assert.Equal(t, 1, ch.closed)
}

func TestAMQPPublisher_ReopensAfterFailure(t *testing.T) {
	broken := &fakePublishChannel{publishErr: amqp.ErrClosed}
	healthy := &fakePublishChannel{}
	channels := []*fakePublishChannel{broken, healthy}
	p, err := NewAMQPPublisher(AMQPOptions{
		Open: func() (PublishChannel, error) {
			ch := channels[0]
			channels = channels[1:]
			return ch, nil
		},
		Exchange: "interop.jobs",
	})
	require.NoError(t, err)

	err = p.NotifyJobFinished(context.Background(), "job-1")
	require.ErrorIs(t, err, amqp.ErrClosed)
	assert.Equal(t, 1, broken.closed)

	require.NoError(t, p.NotifyJobFinished(context.Background(), "job-1"))
	assert.Len(t, healthy.published, 1)
}

func TestAMQPPublisher_OpenError(t *testing.T) {
	p, err := NewAMQPPublisher(AMQPOptions{
		Open:     func() (PublishChannel, error) { return nil, errors.New("dial tcp: refused") },
		Exchange: "interop.jobs",
	})
	require.NoError(t, err)
	require.Error(t, p.NotifyJobFinished(context.Background(), "job-1"))

	_, err = NewAMQPPublisher(AMQPOptions{Exchange: "x"})
	require.Error(t, err)
	_, err = NewAMQPPublisher(AMQPOptions{Open: func() (PublishChannel, error) { return nil, nil }})
	require.Error(t, err)
}

func TestHTTPFinisher(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("Authorization"))
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(raw, &got))
		if got.JobID == "missing" {
			http.Error(w, "unknown job", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	f, err := NewHTTPFinisher(HTTPOptions{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "secret"},
		Client:  srv.Client(),
		Now:     fixedNow,
	})
	require.NoError(t, err)

	require.NoError(t, f.NotifyJobFinished(context.Background(), "job-1"))
	assert.Equal(t, Message{JobID: "job-1", FinishedAt: fixedNow()}, got)

	err = f.NotifyJobFinished(context.Background(), "missing")
	var statusErr *util.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.False(t, statusErr.Retryable())

	_, err = NewHTTPFinisher(HTTPOptions{URL: "  "})
	require.Error(t, err)
}
