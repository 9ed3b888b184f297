package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Employee struct {
	ID            uint            `gorm:"primaryKey"`
	UserID        *uint           `gorm:"index"`
	EmployeeCode  string          `gorm:"size:50;not null;uniqueIndex"`
	MonthlySalary decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	JoiningDate   time.Time       `gorm:"type:date"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "Present"
	AttendanceAbsent  AttendanceStatus = "Absent"
	AttendanceHalfDay AttendanceStatus = "Half-Day"
	AttendanceLeave   AttendanceStatus = "Leave"
)

type Attendance struct {
	ID               uint             `gorm:"primaryKey"`
	EmployeeID       uint             `gorm:"not null;uniqueIndex:idx_attendance_employee_date,priority:1"`
	AttendanceDate   time.Time        `gorm:"type:date;not null;uniqueIndex:idx_attendance_employee_date,priority:2"`
	AttendanceStatus AttendanceStatus `gorm:"size:20;not null"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

const (
	PayrollStatusPending = "Pending"
	PayrollStatusPaid    = "Paid"
)

type PayrollRecord struct {
	ID            uint            `gorm:"primaryKey"`
	EmployeeID    uint            `gorm:"not null;index"`
	PayrollStatus string          `gorm:"size:20;not null"`
	PeriodFrom    time.Time       `gorm:"type:date;not null;index"`
	PeriodTo      time.Time       `gorm:"type:date;not null"`
	WorkingDays   int             `gorm:"not null"`
	DaysPresent   int             `gorm:"not null"`
	NetAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Notes         string          `gorm:"type:text"`
	CreatedByID   *uint
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
