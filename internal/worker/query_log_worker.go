package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"gopherai-kbqa/internal/model"
	"gopherai-kbqa/internal/platform/rabbitmq"
)

type QueryLogStore interface {
	Create(ctx context.Context, log *model.QueryLog) error
}

// QueryLogWorker consumes query events and persists them as query logs.
type QueryLogWorker struct {
	conn      *amqp.Connection
	store     QueryLogStore
	queueName string
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewQueryLogWorker(conn *amqp.Connection, store QueryLogStore, queueName string, logger *slog.Logger) *QueryLogWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryLogWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
		logger:    logger.With("component", "query_log_worker"),
	}
}

func (w *QueryLogWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					w.logger.Error("persist query event failed", "message_id", d.MessageId, "error", err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.logger.Info("query log worker started", "queue", w.queueName)
	return nil
}

func (w *QueryLogWorker) handle(ctx context.Context, body []byte) error {
	var event model.QueryEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode query event failed: %w", err)
	}
	if event.ID == "" {
		return fmt.Errorf("query event has no id")
	}
	log := model.QueryLogFromEvent(event)
	return w.store.Create(ctx, &log)
}

func (w *QueryLogWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
