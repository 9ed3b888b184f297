package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"bizadmin-backend/internal/model"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, notification *model.Notification) error {
	if err := r.db.WithContext(ctx).Create(notification).Error; err != nil {
		return wrapWrite("create notification", err)
	}
	return nil
}

func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&notifications).Error; err != nil {
		return wrapWrite("create notification batch", err)
	}
	return nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id uint) (*model.Notification, error) {
	var notification model.Notification
	err := r.db.WithContext(ctx).First(&notification, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query notification failed: %w", err)
	}
	return &notification, nil
}

func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID uint, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var notifications []model.Notification
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("list notifications failed: %w", err)
	}
	return notifications, nil
}

// MarkRead returns false when the notification does not belong to the recipient.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, recipientID uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Update("is_read", true)
	if result.Error != nil {
		return false, wrapWrite("mark notification read", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkManyRead marks the listed notifications of one recipient as read and
// returns how many rows matched.
func (r *NotificationRepository) MarkManyRead(ctx context.Context, recipientID uint, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("recipient_id = ? AND id IN ?", recipientID, ids).
		Update("is_read", true)
	if result.Error != nil {
		return 0, wrapWrite("mark notifications read", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID uint) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		Update("is_read", true)
	if result.Error != nil {
		return 0, wrapWrite("mark all notifications read", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteUnsentBatch removes the rows of a scheduled broadcast that have not
// been sent yet.
func (r *NotificationRepository) DeleteUnsentBatch(ctx context.Context, batchID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("batch_id = ? AND sent_at IS NULL AND scheduled_at IS NOT NULL", batchID).
		Delete(&model.Notification{})
	if result.Error != nil {
		return 0, wrapWrite("delete scheduled notifications", result.Error)
	}
	return result.RowsAffected, nil
}

// ListDue returns scheduled, unsent notifications whose time has come.
func (r *NotificationRepository) ListDue(ctx context.Context, now time.Time) ([]model.Notification, error) {
	var notifications []model.Notification
	err := r.db.WithContext(ctx).
		Where("scheduled_at IS NOT NULL AND sent_at IS NULL AND scheduled_at <= ?", now).
		Order("scheduled_at ASC").
		Order("id ASC").
		Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("list due notifications failed: %w", err)
	}
	return notifications, nil
}

// MarkSent stamps sent_at and clears scheduled_at. It only touches rows that
// are still unsent, so a concurrent sender cannot double-send.
func (r *NotificationRepository) MarkSent(ctx context.Context, id uint, sentAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ? AND sent_at IS NULL", id).
		Updates(map[string]any{"sent_at": sentAt, "scheduled_at": nil})
	if result.Error != nil {
		return false, wrapWrite("mark notification sent", result.Error)
	}
	return result.RowsAffected > 0, nil
}
