package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"bizadmin-backend/internal/model"
)

type AMCRepository struct {
	db *gorm.DB
}

func NewAMCRepository(db *gorm.DB) *AMCRepository {
	return &AMCRepository{db: db}
}

func (r *AMCRepository) ListActive(ctx context.Context) ([]model.AMC, error) {
	var amcs []model.AMC
	if err := r.db.WithContext(ctx).Where("status = ?", model.AMCStatusActive).Order("id ASC").Find(&amcs).Error; err != nil {
		return nil, fmt.Errorf("list active amcs failed: %w", err)
	}
	return amcs, nil
}

func (r *AMCRepository) BillingExists(ctx context.Context, amcID uint, from, to time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.AMCBilling{}).
		Where("amc_id = ? AND period_from = ? AND period_to = ?", amcID, from, to).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check amc billing failed: %w", err)
	}
	return count > 0, nil
}

func (r *AMCRepository) BillNumberExists(ctx context.Context, billNumber string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.AMCBilling{}).Where("bill_number = ?", billNumber).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check bill number failed: %w", err)
	}
	return count > 0, nil
}

func (r *AMCRepository) CreateBilling(ctx context.Context, billing *model.AMCBilling) error {
	if err := r.db.WithContext(ctx).Create(billing).Error; err != nil {
		return wrapWrite("create amc billing", err)
	}
	return nil
}
