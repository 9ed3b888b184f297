// Package notify creates in-app notifications and forwards push ones to the
// push gateway queue.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"bizadmin-backend/internal/logging"
	"bizadmin-backend/internal/model"
	"bizadmin-backend/internal/repository"
)

// Publisher hands a JSON payload to a queue.
type Publisher interface {
	Publish(ctx context.Context, payload any) error
}

// Service broadcasts job results to the owners of the business and owner
// notifications to the staff.
type Service struct {
	users         *repository.UserRepository
	notifications *repository.NotificationRepository
	persist       Publisher
	push          func() (*PushClient, error)
	logger        logrus.FieldLogger
	now           func() time.Time
}

func NewService(users *repository.UserRepository, notifications *repository.NotificationRepository, persist Publisher, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		users:         users,
		notifications: notifications,
		persist:       persist,
		logger:        logger,
		now:           time.Now,
	}
}

// WithPush sets the push client source used for broadcasts on the push channel.
func (s *Service) WithPush(push func() (*PushClient, error)) *Service {
	s.push = push
	return s
}

// NotifyOwners sends one in-app notification to every superuser and returns
// how many were queued or stored. Rows go through the persist queue; when the
// broker is unavailable they are written directly.
func (s *Service) NotifyOwners(ctx context.Context, title, message string, notificationType model.NotificationType) (int, error) {
	owners, err := s.users.ListSuperusers(ctx)
	if err != nil {
		return 0, err
	}

	sentAt := s.now().UTC()
	sent := 0
	for _, owner := range owners {
		notification := model.Notification{
			RecipientID: owner.ID,
			Title:       title,
			Message:     message,
			Type:        notificationType,
			Channel:     model.ChannelInApp,
			SentAt:      &sentAt,
		}
		if err := s.deliver(ctx, &notification); err != nil {
			logging.LogError(s.logger, "notify", "Service.NotifyOwners", "deliver owner notification", owner.ID, err)
			continue
		}
		sent++
	}

	if sent < len(owners) {
		return sent, fmt.Errorf("notified %d of %d owners", sent, len(owners))
	}
	return sent, nil
}

func (s *Service) deliver(ctx context.Context, notification *model.Notification) error {
	if s.persist != nil {
		err := s.persist.Publish(ctx, notification)
		if err == nil {
			return nil
		}
		s.logger.WithError(err).Warn("notification queue unavailable, writing directly")
	}
	return s.notifications.Create(ctx, notification)
}
