package model

import "time"

type NotificationType string

const (
	NotificationTypeTask    NotificationType = "Task"
	NotificationTypeAMC     NotificationType = "AMC"
	NotificationTypeTender  NotificationType = "Tender"
	NotificationTypePayroll NotificationType = "Payroll"
	NotificationTypeSystem  NotificationType = "System"
	NotificationTypeOther   NotificationType = "Other"
)

type NotificationChannel string

const (
	ChannelInApp NotificationChannel = "In-App"
	ChannelEmail NotificationChannel = "Email"
	ChannelPush  NotificationChannel = "Push"
)

type Notification struct {
	ID          uint                `gorm:"primaryKey" json:"id"`
	RecipientID uint                `gorm:"not null;index" json:"recipient_id"`
	Title       string              `gorm:"size:255;not null" json:"title"`
	Message     string              `gorm:"type:text;not null" json:"message"`
	Type        NotificationType    `gorm:"size:20;not null" json:"type"`
	Channel     NotificationChannel `gorm:"size:20;not null" json:"channel"`
	IsRead      bool                `gorm:"not null" json:"is_read"`
	ScheduledAt *time.Time          `gorm:"index" json:"scheduled_at,omitempty"`
	SentAt      *time.Time          `gorm:"index" json:"sent_at,omitempty"`
	CreatedByID *uint               `json:"created_by,omitempty"`
	BatchID     string              `gorm:"size:36;index" json:"batch_id,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}
