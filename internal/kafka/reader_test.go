package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bits-gateway/internal/message"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queueReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []int64
	drained   chan struct{}
	once      sync.Once
}

func newQueueReader(values ...string) *queueReader {
	r := &queueReader{drained: make(chan struct{})}
	for i, v := range values {
		r.queue = append(r.queue, kafka.Message{Offset: int64(i), Value: []byte(v)})
	}
	return r
}

func (r *queueReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	r.once.Do(func() { close(r.drained) })
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *queueReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

type unavailableReader struct {
	fetches atomic.Int32
}

func (r *unavailableReader) FetchMessage(context.Context) (kafka.Message, error) {
	r.fetches.Add(1)
	return kafka.Message{}, errors.New("broker unavailable")
}

func (r *unavailableReader) CommitMessages(context.Context, ...kafka.Message) error {
	return nil
}

func TestReadVerificationRequests_WaitsBetweenFailedFetches(t *testing.T) {
	previous := fetchRetryDelay
	fetchRetryDelay = 100 * time.Millisecond
	defer func() { fetchRetryDelay = previous }()

	reader := &unavailableReader{}
	ctx, cancel := context.WithTimeout(context.Background(), 350*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ReadVerificationRequests(ctx, reader, func(context.Context, message.VerificationRequest) error {
			return nil
		}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not stop while waiting to retry")
	}

	assert.GreaterOrEqual(t, reader.fetches.Load(), int32(2))
	assert.LessOrEqual(t, reader.fetches.Load(), int32(5))
}

func TestReadVerificationRequests(t *testing.T) {
	reader := newQueueReader(
		`{"id":"7b7c6b7e-8d1a-4a51-9a43-2f8f0a3c9d10","paymentId":17}`,
		`not json`,
		`{"id":"1b0c2d3e-8d1a-4a51-9a43-2f8f0a3c9d10","paymentId":18}`,
	)
	reader.fetchErrs = []error{errors.New("broker unavailable")}

	previous := fetchRetryDelay
	fetchRetryDelay = 10 * time.Millisecond
	defer func() { fetchRetryDelay = previous }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled []int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		ReadVerificationRequests(ctx, reader, func(_ context.Context, r message.VerificationRequest) error {
			handled = append(handled, r.PaymentID)
			if r.PaymentID == 18 {
				return errors.New("provider down")
			}
			return nil
		}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()

	select {
	case <-reader.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not drain the queue")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not stop after cancellation")
	}

	require.Equal(t, []int64{17, 18}, handled)
	assert.Equal(t, []int64{0, 1, 2}, reader.committed)
}
