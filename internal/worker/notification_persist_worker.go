package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"bizadmin-backend/internal/logging"
	"bizadmin-backend/internal/model"
	"bizadmin-backend/internal/platform/rabbitmq"
	"bizadmin-backend/internal/repository"
)

// NotificationPersistWorker drains the notification queue into the database.
type NotificationPersistWorker struct {
	conn      *amqp.Connection
	repo      *repository.NotificationRepository
	queueName string
	logger    logrus.FieldLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNotificationPersistWorker(conn *amqp.Connection, repo *repository.NotificationRepository, queueName string, logger logrus.FieldLogger) *NotificationPersistWorker {
	if logger == nil {
		logger = logging.Discard()
	}
	return &NotificationPersistWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
		logger:    logger.WithField("worker", "notification_persist"),
	}
}

func (w *NotificationPersistWorker) Start(ctx context.Context) error {
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
	if err := rabbitmq.DeclareDurable(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(32, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker prefetch failed: %w", err)
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
					w.logger.Warn("delivery channel closed")
					return
				}
				if err := w.persist(workerCtx, d.Body); err != nil {
					logging.LogError(w.logger, "worker", "NotificationPersistWorker.Start", "persist notification", string(d.Body), err)
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.logger.WithField("queue", w.queueName).Info("worker started")
	return nil
}

func (w *NotificationPersistWorker) persist(ctx context.Context, body []byte) error {
	var notification model.Notification
	if err := json.Unmarshal(body, &notification); err != nil {
		return fmt.Errorf("decode notification failed: %w", err)
	}
	if notification.RecipientID == 0 {
		return fmt.Errorf("notification without recipient")
	}
	// the queue carries new rows only
	notification.ID = 0
	return w.repo.Create(ctx, &notification)
}

func (w *NotificationPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
