package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AMCStatusPending  = "Pending"
	AMCStatusActive   = "Active"
	AMCStatusExpired  = "Expired"
	AMCStatusCanceled = "Canceled"
)

type BillingCycle string

const (
	BillingMonthly    BillingCycle = "Monthly"
	BillingQuarterly  BillingCycle = "Quarterly"
	BillingHalfYearly BillingCycle = "Half-yearly"
	BillingYearly     BillingCycle = "Yearly"
)

type AMC struct {
	ID           uint            `gorm:"primaryKey"`
	AMCNumber    string          `gorm:"size:100;not null;uniqueIndex"`
	ClientName   string          `gorm:"size:255"`
	Amount       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	StartDate    time.Time       `gorm:"type:date;not null"`
	EndDate      time.Time       `gorm:"type:date;not null"`
	Status       string          `gorm:"size:20;not null;index"`
	BillingCycle BillingCycle    `gorm:"size:20;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type AMCBilling struct {
	ID          uint            `gorm:"primaryKey"`
	AMCID       uint            `gorm:"not null;index"`
	BillNumber  string          `gorm:"size:100;not null;index"`
	BillDate    time.Time       `gorm:"type:date;not null"`
	PeriodFrom  time.Time       `gorm:"type:date;not null"`
	PeriodTo    time.Time       `gorm:"type:date;not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Paid        bool            `gorm:"not null"`
	CreatedByID *uint
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
