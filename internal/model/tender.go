package model

import "time"

const (
	TenderStatusDraft   = "Draft"
	TenderStatusFiled   = "Filed"
	TenderStatusAwarded = "Awarded"
	TenderStatusLost    = "Lost"
	TenderStatusClosed  = "Closed"
)

type Tender struct {
	ID              uint       `gorm:"primaryKey"`
	Name            string     `gorm:"size:255;not null"`
	ReferenceNumber string     `gorm:"size:100"`
	StartDate       *time.Time `gorm:"type:date"`
	EndDate         *time.Time `gorm:"type:date;index"`
	Status          string     `gorm:"size:20;not null;index"`
	UpdatedByID     *uint
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
