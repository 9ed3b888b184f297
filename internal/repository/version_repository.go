package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bizadmin-backend/internal/model"
)

type VersionRepository struct {
	db *gorm.DB
}

func NewVersionRepository(db *gorm.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

func (r *VersionRepository) Create(ctx context.Context, version *model.DocumentVersion) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(version).Error; err != nil {
		return wrapWrite("create document version", err)
	}
	return nil
}

// MaxVersionNumber returns 0 when the template has no versions.
func (r *VersionRepository) MaxVersionNumber(ctx context.Context, templateID uint) (uint, error) {
	var maxVersion uint
	err := r.db.WithContext(ctx).
		Model(&model.DocumentVersion{}).
		Where("template_id = ?", templateID).
		Select("COALESCE(MAX(version_number), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, fmt.Errorf("query max version number failed: %w", err)
	}
	return maxVersion, nil
}

func (r *VersionRepository) UnpublishAll(ctx context.Context, templateID uint) error {
	err := r.db.WithContext(ctx).
		Model(&model.DocumentVersion{}).
		Where("template_id = ? AND is_published = ?", templateID, true).
		Update("is_published", false).Error
	if err != nil {
		return wrapWrite("unpublish document versions", err)
	}
	return nil
}

func (r *VersionRepository) GetByID(ctx context.Context, id uint) (*model.DocumentVersion, error) {
	var version model.DocumentVersion
	if err := r.db.WithContext(ctx).Preload("Template").First(&version, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query document version by id failed: %w", err)
	}
	return &version, nil
}

// GetPublished returns the published version of a template, or nil.
func (r *VersionRepository) GetPublished(ctx context.Context, templateID uint) (*model.DocumentVersion, error) {
	var version model.DocumentVersion
	err := r.db.WithContext(ctx).
		Preload("Template").
		Where("template_id = ? AND is_published = ?", templateID, true).
		Order("version_number DESC").
		First(&version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query published document version failed: %w", err)
	}
	return &version, nil
}

func (r *VersionRepository) ListByTemplateID(ctx context.Context, templateID uint) ([]model.DocumentVersion, error) {
	var versions []model.DocumentVersion
	err := r.db.WithContext(ctx).
		Where("template_id = ?", templateID).
		Order("version_number ASC").
		Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("list document versions failed: %w", err)
	}
	return versions, nil
}
