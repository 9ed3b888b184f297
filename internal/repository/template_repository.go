package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bizadmin-backend/internal/model"
)

type TemplateRepository struct {
	db *gorm.DB
}

type TemplateFilter struct {
	Category string
	FirmID   uint
	Search   string
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(ctx context.Context, template *model.DocumentTemplate) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(template).Error; err != nil {
		return wrapWrite("create document template", err)
	}
	return nil
}

// FindByIdentity looks a template up by its identity digest. With forUpdate
// the row stays locked until the surrounding transaction ends.
func (r *TemplateRepository) FindByIdentity(ctx context.Context, identityKey string, forUpdate bool) (*model.DocumentTemplate, error) {
	var template model.DocumentTemplate
	query := r.db.WithContext(ctx).Where("identity_key = ?", identityKey)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := query.First(&template).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query document template by identity failed: %w", err)
	}
	return &template, nil
}

func (r *TemplateRepository) UpdateDescription(ctx context.Context, id uint, description string, updatedByID *uint) error {
	err := r.db.WithContext(ctx).
		Model(&model.DocumentTemplate{}).
		Where("id = ?", id).
		Updates(map[string]any{"description": description, "updated_by_id": updatedByID}).Error
	if err != nil {
		return wrapWrite("update document template description", err)
	}
	return nil
}

func (r *TemplateRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.DocumentTemplate{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check document template failed: %w", err)
	}
	return count > 0, nil
}

// GetDetail loads a template with firm, creator and versions in ascending order.
func (r *TemplateRepository) GetDetail(ctx context.Context, id uint) (*model.DocumentTemplate, error) {
	var template model.DocumentTemplate
	if err := r.withDetail(ctx).First(&template, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query document template detail failed: %w", err)
	}
	return &template, nil
}

// List returns templates newest-created first. Search is a case-insensitive
// substring match on title.
func (r *TemplateRepository) List(ctx context.Context, filter TemplateFilter) ([]model.DocumentTemplate, error) {
	query := r.withDetail(ctx)
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.FirmID != 0 {
		query = query.Where("firm_id = ?", filter.FirmID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where("LOWER(title) LIKE ? ESCAPE '!'", "%"+escapeLike(strings.ToLower(search))+"%")
	}

	var templates []model.DocumentTemplate
	if err := query.Order("created_at DESC").Order("id DESC").Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("list document templates failed: %w", err)
	}
	return templates, nil
}

func (r *TemplateRepository) withDetail(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Firm").
		Preload("CreatedBy").
		Preload("Versions", func(db *gorm.DB) *gorm.DB {
			return db.Order("version_number ASC")
		}).
		Preload("Versions.CreatedBy")
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
