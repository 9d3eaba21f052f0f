package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/finvault/internal/core/domain"
	"github.com/kirillkom/finvault/internal/infrastructure/resilience"
)

const workerQueueGroup = "query-history-workers"

// Queue carries finished research runs from the API to the history worker.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("finvault"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishQueryCompleted(ctx context.Context, record domain.QueryRecord) error {
	payload, err := encodeRecord(record)
	if err != nil {
		return err
	}

	err = q.executor.Execute(ctx, "nats.publish", func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}, classifyNATSError)
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeQueryCompleted blocks until ctx is done, then drains the
// subscription so in-flight records are still handled.
func (q *Queue) SubscribeQueryCompleted(ctx context.Context, handler func(context.Context, domain.QueryRecord) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		record, err := decodeRecord(msg.Data)
		if err != nil {
			q.logger.Warn("query_event_malformed", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, record); err != nil {
			q.logger.Error("query_event_handler_failed",
				"record_id", record.ID,
				"error_kind", domain.ErrorKind(err),
				"error", err,
			)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeRecord(record domain.QueryRecord) ([]byte, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode query record: %w", err)
	}
	return payload, nil
}

func decodeRecord(data []byte) (domain.QueryRecord, error) {
	var record domain.QueryRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return domain.QueryRecord{}, domain.WrapError(domain.ErrInvalidInput, "decode query record", err)
	}
	if record.ID == "" {
		return domain.QueryRecord{}, domain.WrapError(domain.ErrInvalidInput, "decode query record", fmt.Errorf("record id is missing"))
	}
	return record, nil
}
