package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bits-gateway/internal/config"
	"bits-gateway/internal/logcontext"
	"bits-gateway/internal/message"
	"github.com/VictoriaMetrics/metrics"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type Metrics struct {
	ReadErrorCounter      *metrics.Counter
	UnmarshalErrorCounter *metrics.Counter
	ProcessErrorCounter   *metrics.Counter
	CommitErrorCounter    *metrics.Counter
	SuccessCounter        *metrics.Counter
}

func newMetrics(messageType string) Metrics {
	counter := func(result string) *metrics.Counter {
		return metrics.GetOrCreateCounter(fmt.Sprintf(`kafka_reader_total{result=%q,type=%q}`, result, messageType))
	}
	return Metrics{
		ReadErrorCounter:      counter("read_error"),
		UnmarshalErrorCounter: counter("unmarshal_error"),
		ProcessErrorCounter:   counter("process_error"),
		CommitErrorCounter:    counter("commit_error"),
		SuccessCounter:        counter("success"),
	}
}

var verificationRequestMetrics = newMetrics("verification_request")

// fetchRetryDelay is the pause after a failed fetch before the next attempt.
var fetchRetryDelay = time.Second

// MessageReader is the part of *kafka.Reader used by the consumers.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewReader(cfg config.Kafka, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: strings.Split(cfg.Broker.URL, ","),
		GroupID: cfg.Reader.GroupID,
		Topic:   topic,
	})
}

// ReadVerificationRequests blocks until ctx is done, passing every decoded
// request to handle. Messages are committed after handling, so a crash in
// between redelivers the request.
func ReadVerificationRequests(ctx context.Context, reader MessageReader, handle func(context.Context, message.VerificationRequest) error, logger *slog.Logger) {
	readMessages(ctx, reader, logger, func(ctx context.Context, value []byte) error {
		var r message.VerificationRequest
		if err := json.Unmarshal(value, &r); err != nil {
			verificationRequestMetrics.UnmarshalErrorCounter.Inc()
			return errors.Wrap(err, "unmarshal verification request")
		}
		ctx = logcontext.AppendCtx(ctx, slog.String("messageId", r.ID.String()))
		return handle(ctx, r)
	}, verificationRequestMetrics)
}

func readMessages(ctx context.Context, reader MessageReader, logger *slog.Logger, process func(context.Context, []byte) error, kafkaMetrics Metrics) {
	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.InfoContext(ctx, "Context done, stopping reader")
				return
			}
			logger.ErrorContext(ctx, "Error reading message", "error", err)
			kafkaMetrics.ReadErrorCounter.Inc()

			select {
			case <-ctx.Done():
				logger.InfoContext(ctx, "Context done, stopping reader")
				return
			case <-time.After(fetchRetryDelay):
			}
			continue
		}
		logger.DebugContext(ctx, "Received message", "topic", m.Topic, "partition", m.Partition, "offset", m.Offset)

		if err := process(ctx, m.Value); err != nil {
			logger.ErrorContext(ctx, "Error processing message", "error", err, "offset", m.Offset)
			kafkaMetrics.ProcessErrorCounter.Inc()
		} else {
			kafkaMetrics.SuccessCounter.Inc()
		}

		if err := reader.CommitMessages(ctx, m); err != nil {
			logger.ErrorContext(ctx, "Error committing message", "error", err, "offset", m.Offset)
			kafkaMetrics.CommitErrorCounter.Inc()
		}
	}
}
