package model

import "time"

type Firm struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FirmName  string    `gorm:"size:255;not null" json:"firm_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
