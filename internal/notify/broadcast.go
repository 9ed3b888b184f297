package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bizadmin-backend/internal/logging"
	"bizadmin-backend/internal/model"
)

var (
	ErrInvalidNotification = errors.New("invalid notification")
	ErrOwnerOnly           = errors.New("only owners can broadcast notifications")
	ErrNotificationMissing = errors.New("notification not found")
	ErrNotCreator          = errors.New("only the creator can cancel a scheduled notification")
	ErrNotScheduled        = errors.New("notification is not scheduled or has already been sent")
)

const (
	BroadcastSent      = "sent"
	BroadcastScheduled = "scheduled"
)

type BroadcastInput struct {
	Title       string
	Message     string
	Type        model.NotificationType
	Channel     model.NotificationChannel
	ScheduledAt *time.Time
	CreatedByID uint
}

type BroadcastResult struct {
	Status      string
	BatchID     string
	Recipients  int
	ScheduledAt *time.Time
	Sample      *model.Notification
}

// Broadcast addresses a notification to every employee account, or to the
// creator when no employee has an account. A future ScheduledAt stores the
// rows for the scheduled-notification job; otherwise they are sent now.
func (s *Service) Broadcast(ctx context.Context, input BroadcastInput) (*BroadcastResult, error) {
	title := strings.TrimSpace(input.Title)
	message := strings.TrimSpace(input.Message)
	channel := input.Channel
	if channel == "" {
		channel = model.ChannelInApp
	}
	switch {
	case title == "" || message == "":
		return nil, fmt.Errorf("%w: title and message are required", ErrInvalidNotification)
	case !validType(input.Type):
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidNotification, input.Type)
	case !validChannel(channel):
		return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidNotification, channel)
	}

	creator, err := s.users.GetByID(ctx, input.CreatedByID)
	if err != nil {
		return nil, err
	}
	if creator == nil || !creator.IsSuperuser {
		return nil, ErrOwnerOnly
	}

	recipients, err := s.users.ListEmployeeAccounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		recipients = append(recipients, *creator)
	}

	now := s.now().UTC()
	result := &BroadcastResult{BatchID: uuid.NewString(), Recipients: len(recipients)}
	rows := make([]model.Notification, 0, len(recipients))
	for _, recipient := range recipients {
		rows = append(rows, model.Notification{
			RecipientID: recipient.ID,
			Title:       title,
			Message:     message,
			Type:        input.Type,
			Channel:     channel,
			CreatedByID: &creator.ID,
			BatchID:     result.BatchID,
		})
	}

	log := s.logger.WithFields(logrus.Fields{"batch_id": result.BatchID, "recipients": len(rows), "channel": channel})
	if input.ScheduledAt != nil && input.ScheduledAt.After(now) {
		at := input.ScheduledAt.UTC()
		for i := range rows {
			rows[i].ScheduledAt = &at
		}
		if err := s.notifications.CreateBatch(ctx, rows); err != nil {
			return nil, err
		}
		result.Status = BroadcastScheduled
		result.ScheduledAt = &at
		result.Sample = &rows[0]
		log.WithField("scheduled_at", at).Info("notification broadcast scheduled")
		return result, nil
	}

	for i := range rows {
		rows[i].SentAt = &now
	}
	if err := s.sendNow(ctx, rows); err != nil {
		return nil, err
	}
	result.Status = BroadcastSent
	result.Sample = &rows[0]
	log.Info("notification broadcast sent")
	return result, nil
}

// sendNow stores push rows directly so the gateway gets their ids. Other rows
// go through the persist queue like owner notifications.
func (s *Service) sendNow(ctx context.Context, rows []model.Notification) error {
	if rows[0].Channel == model.ChannelPush {
		if err := s.notifications.CreateBatch(ctx, rows); err != nil {
			return err
		}
		s.pushAll(ctx, rows)
		return nil
	}

	delivered := 0
	for i := range rows {
		if err := s.deliver(ctx, &rows[i]); err != nil {
			logging.LogError(s.logger, "notify", "Service.Broadcast", "deliver notification", rows[i].RecipientID, err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("broadcast reached none of %d recipients", len(rows))
	}
	return nil
}

func (s *Service) pushAll(ctx context.Context, rows []model.Notification) {
	if s.push == nil {
		return
	}
	client, err := s.push()
	if err != nil {
		logging.LogError(s.logger, "notify", "Service.Broadcast", "push client", rows[0].BatchID, err)
		return
	}
	for i := range rows {
		if err := client.Send(ctx, &rows[i]); err != nil {
			logging.LogError(s.logger, "notify", "Service.Broadcast", "push notification", rows[i].ID, err)
		}
	}
}

// CancelScheduled deletes every unsent row of the broadcast the given
// notification belongs to and returns how many were removed.
func (s *Service) CancelScheduled(ctx context.Context, notificationID, actorID uint) (int64, error) {
	notification, err := s.notifications.GetByID(ctx, notificationID)
	if err != nil {
		return 0, err
	}
	if notification == nil {
		return 0, ErrNotificationMissing
	}
	if notification.CreatedByID == nil || *notification.CreatedByID != actorID {
		return 0, ErrNotCreator
	}
	if notification.ScheduledAt == nil || notification.SentAt != nil || notification.BatchID == "" {
		return 0, ErrNotScheduled
	}

	cancelled, err := s.notifications.DeleteUnsentBatch(ctx, notification.BatchID)
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{"batch_id": notification.BatchID, "cancelled": cancelled}).Info("scheduled notification cancelled")
	return cancelled, nil
}

func validType(t model.NotificationType) bool {
	switch t {
	case model.NotificationTypeTask, model.NotificationTypeAMC, model.NotificationTypeTender,
		model.NotificationTypePayroll, model.NotificationTypeSystem, model.NotificationTypeOther:
		return true
	}
	return false
}

func validChannel(c model.NotificationChannel) bool {
	switch c {
	case model.ChannelInApp, model.ChannelEmail, model.ChannelPush:
		return true
	}
	return false
}
