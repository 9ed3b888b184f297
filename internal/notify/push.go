package notify

import (
	"context"
	"errors"
	"sync"

	"bizadmin-backend/internal/model"
)

var ErrNotPushChannel = errors.New("notification is not on the push channel")

// PushMessage is what the push gateway consumes.
type PushMessage struct {
	NotificationID uint                   `json:"notification_id"`
	RecipientID    uint                   `json:"recipient_id"`
	Title          string                 `json:"title"`
	Body           string                 `json:"body"`
	Type           model.NotificationType `json:"type"`
}

type PushClient struct {
	publisher Publisher
}

func NewPushClient(publisher Publisher) *PushClient {
	return &PushClient{publisher: publisher}
}

func (c *PushClient) Send(ctx context.Context, notification *model.Notification) error {
	if notification.Channel != model.ChannelPush {
		return ErrNotPushChannel
	}
	return c.publisher.Publish(ctx, PushMessage{
		NotificationID: notification.ID,
		RecipientID:    notification.RecipientID,
		Title:          notification.Title,
		Body:           notification.Message,
		Type:           notification.Type,
	})
}

var (
	pushMu     sync.Mutex
	pushClient *PushClient
)

// EnsureInitialized returns the process-wide push client, calling build only
// when no client exists yet. A failed build leaves nothing behind, so a later
// call tries again.
func EnsureInitialized(build func() (*PushClient, error)) (*PushClient, error) {
	pushMu.Lock()
	defer pushMu.Unlock()

	if pushClient != nil {
		return pushClient, nil
	}
	client, err := build()
	if err != nil {
		return nil, err
	}
	pushClient = client
	return client, nil
}
