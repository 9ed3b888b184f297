package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"bizadmin-backend/internal/model"
)

type HRRepository struct {
	db *gorm.DB
}

func NewHRRepository(db *gorm.DB) *HRRepository {
	return &HRRepository{db: db}
}

func (r *HRRepository) ListEmployees(ctx context.Context) ([]model.Employee, error) {
	var employees []model.Employee
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&employees).Error; err != nil {
		return nil, fmt.Errorf("list employees failed: %w", err)
	}
	return employees, nil
}

// EmployeeIDsWithAttendance returns the employees that already have a row for day.
func (r *HRRepository) EmployeeIDsWithAttendance(ctx context.Context, day time.Time) (map[uint]struct{}, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&model.Attendance{}).
		Where("attendance_date = ?", day).
		Pluck("employee_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("query attendance for day failed: %w", err)
	}
	out := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

func (r *HRRepository) CreateAttendance(ctx context.Context, attendance *model.Attendance) error {
	if err := r.db.WithContext(ctx).Create(attendance).Error; err != nil {
		return wrapWrite("create attendance", err)
	}
	return nil
}

// CountPresentDays counts Present and Half-Day rows in [from, to].
func (r *HRRepository) CountPresentDays(ctx context.Context, employeeID uint, from, to time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Attendance{}).
		Where("employee_id = ? AND attendance_date >= ? AND attendance_date <= ?", employeeID, from, to).
		Where("attendance_status IN ?", []model.AttendanceStatus{model.AttendancePresent, model.AttendanceHalfDay}).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count present days failed: %w", err)
	}
	return int(count), nil
}

func (r *HRRepository) PayrollExists(ctx context.Context, employeeID uint, monthStart, monthEnd time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.PayrollRecord{}).
		Where("employee_id = ? AND period_from >= ? AND period_from <= ?", employeeID, monthStart, monthEnd).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check payroll record failed: %w", err)
	}
	return count > 0, nil
}

func (r *HRRepository) CreatePayroll(ctx context.Context, record *model.PayrollRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return wrapWrite("create payroll record", err)
	}
	return nil
}
