package jobs

import (
	"context"
	"time"

	"bizadmin-backend/internal/logging"
	"bizadmin-backend/internal/model"
)

// SendScheduledNotifications releases notifications whose scheduled time has
// passed. Push ones are also handed to the push gateway.
func (s *Set) SendScheduledNotifications(ctx context.Context) (Result, error) {
	now := s.Now().UTC()

	due, err := s.Notifications.ListDue(ctx, now)
	if err != nil {
		return Result{}, err
	}

	sent, pushed, failed := 0, 0, 0
	for i := range due {
		notification := &due[i]
		ok, err := s.Notifications.MarkSent(ctx, notification.ID, now)
		if err != nil {
			logging.LogError(s.Logger, "jobs", "SendScheduledNotifications", "mark sent", notification.ID, err)
			failed++
			continue
		}
		if !ok {
			// another run got there first
			continue
		}
		sent++

		if notification.Channel == model.ChannelPush && s.Push != nil {
			if err := s.push(ctx, notification); err != nil {
				logging.LogError(s.Logger, "jobs", "SendScheduledNotifications", "push", notification.ID, err)
				failed++
				continue
			}
			pushed++
		}
	}

	return Result{
		Status: StatusSuccess,
		Date:   now.Format(time.RFC3339),
		Counts: map[string]int{"sent": sent, "pushed": pushed, "failed": failed},
	}, nil
}

func (s *Set) push(ctx context.Context, notification *model.Notification) error {
	client, err := s.Push()
	if err != nil {
		return err
	}
	return client.Send(ctx, notification)
}
