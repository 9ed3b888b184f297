package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"bizadmin-backend/internal/model"
)

type TenderRepository struct {
	db *gorm.DB
}

func NewTenderRepository(db *gorm.DB) *TenderRepository {
	return &TenderRepository{db: db}
}

// ListAwardedEndedBefore returns awarded tenders whose end date is strictly before day.
func (r *TenderRepository) ListAwardedEndedBefore(ctx context.Context, day time.Time) ([]model.Tender, error) {
	var tenders []model.Tender
	err := r.db.WithContext(ctx).
		Where("status = ? AND end_date IS NOT NULL AND end_date < ?", model.TenderStatusAwarded, day).
		Order("id ASC").
		Find(&tenders).Error
	if err != nil {
		return nil, fmt.Errorf("list awarded tenders failed: %w", err)
	}
	return tenders, nil
}

func (r *TenderRepository) UpdateStatus(ctx context.Context, id uint, status string) error {
	err := r.db.WithContext(ctx).Model(&model.Tender{}).Where("id = ?", id).Update("status", status).Error
	if err != nil {
		return wrapWrite("update tender status", err)
	}
	return nil
}
