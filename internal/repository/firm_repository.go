package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"bizadmin-backend/internal/model"
)

type FirmRepository struct {
	db *gorm.DB
}

func NewFirmRepository(db *gorm.DB) *FirmRepository {
	return &FirmRepository{db: db}
}

func (r *FirmRepository) Create(ctx context.Context, firm *model.Firm) error {
	if err := r.db.WithContext(ctx).Create(firm).Error; err != nil {
		return wrapWrite("create firm", err)
	}
	return nil
}

func (r *FirmRepository) GetByID(ctx context.Context, id uint) (*model.Firm, error) {
	var firm model.Firm
	if err := r.db.WithContext(ctx).First(&firm, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query firm by id failed: %w", err)
	}
	return &firm, nil
}
