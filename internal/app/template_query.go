package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"bizadmin-backend/internal/logging"
	"bizadmin-backend/internal/model"
	"bizadmin-backend/internal/repository"
	"bizadmin-backend/internal/storage"
)

type VersionView struct {
	ID                uint           `json:"id"`
	Template          uint           `json:"template"`
	VersionNumber     uint           `json:"version_number"`
	File              string         `json:"file"`
	FileURL           *string        `json:"file_url"`
	FileName          string         `json:"file_name"`
	FileType          model.FileType `json:"file_type"`
	FileSize          int64          `json:"file_size"`
	PageCount         int            `json:"page_count"`
	IsPublished       bool           `json:"is_published"`
	CreatedAt         time.Time      `json:"created_at"`
	CreatedBy         *uint          `json:"created_by"`
	CreatedByUsername *string        `json:"created_by_username"`
}

type TemplateView struct {
	ID                uint          `json:"id"`
	Title             string        `json:"title"`
	Category          *string       `json:"category"`
	Description       *string       `json:"description"`
	Firm              uint          `json:"firm"`
	FirmName          string        `json:"firm_name"`
	Versions          []VersionView `json:"versions"`
	PublishedVersion  *VersionView  `json:"published_version"`
	CreatedAt         time.Time     `json:"created_at"`
	CreatedBy         *uint         `json:"created_by"`
	CreatedByUsername *string       `json:"created_by_username"`
}

// TemplateQueryService serves read projections of templates and their history.
type TemplateQueryService struct {
	templates *repository.TemplateRepository
	blobs     storage.Backend
	cache     TemplateCache
	logger    logrus.FieldLogger
}

func NewTemplateQueryService(templates *repository.TemplateRepository, blobs storage.Backend, cache TemplateCache, logger logrus.FieldLogger) *TemplateQueryService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &TemplateQueryService{templates: templates, blobs: blobs, cache: cache, logger: logger}
}

func (s *TemplateQueryService) List(ctx context.Context, filter repository.TemplateFilter) ([]TemplateView, error) {
	templates, err := s.templates.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]TemplateView, 0, len(templates))
	for i := range templates {
		views = append(views, s.Project(ctx, &templates[i]))
	}
	return views, nil
}

// Get reads through the cache. An entry is only written back when no upload
// marked the template dirty while the rows were being loaded.
func (s *TemplateQueryService) Get(ctx context.Context, id uint) (*TemplateView, error) {
	if s.cache != nil {
		var cached TemplateView
		hit, err := s.cache.Get(ctx, id, &cached)
		if err != nil {
			logging.LogError(s.logger, "app", "TemplateQueryService.Get", "read template cache", id, err)
		} else if hit {
			return &cached, nil
		}
	}

	template, err := s.templates.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, ErrTemplateNotFound
	}
	view := s.Project(ctx, template)

	if s.cache != nil {
		dirty, err := s.cache.IsDirty(ctx, id)
		if err == nil && !dirty {
			err = s.cache.Set(ctx, id, view)
		}
		if err != nil {
			logging.LogError(s.logger, "app", "TemplateQueryService.Get", "write template cache", id, err)
		}
	}
	return &view, nil
}

func (s *TemplateQueryService) Project(ctx context.Context, template *model.DocumentTemplate) TemplateView {
	view := TemplateView{
		ID:          template.ID,
		Title:       template.Title,
		Category:    optionalString(template.Category),
		Description: optionalString(template.Description),
		Firm:        template.FirmID,
		Versions:    make([]VersionView, 0, len(template.Versions)),
		CreatedAt:   template.CreatedAt,
		CreatedBy:   template.CreatedByID,
	}
	if template.Firm != nil {
		view.FirmName = template.Firm.FirmName
	}
	if template.CreatedBy != nil {
		view.CreatedByUsername = &template.CreatedBy.Username
	}

	for i := range template.Versions {
		version := s.ProjectVersion(ctx, &template.Versions[i])
		view.Versions = append(view.Versions, version)
		if version.IsPublished {
			published := version
			view.PublishedVersion = &published
		}
	}
	return view
}

func (s *TemplateQueryService) ProjectVersion(ctx context.Context, version *model.DocumentVersion) VersionView {
	view := VersionView{
		ID:            version.ID,
		Template:      version.TemplateID,
		VersionNumber: version.VersionNumber,
		File:          version.FileKey,
		FileName:      version.FileName,
		FileType:      version.FileType,
		FileSize:      version.FileSize,
		PageCount:     version.PageCount,
		IsPublished:   version.IsPublished,
		CreatedAt:     version.CreatedAt,
		CreatedBy:     version.CreatedByID,
	}
	if version.CreatedBy != nil {
		view.CreatedByUsername = &version.CreatedBy.Username
	}
	if url, err := s.blobs.URL(ctx, version.FileKey); err == nil {
		view.FileURL = &url
	} else {
		s.logger.WithField("key", version.FileKey).WithError(err).Debug("file url unavailable")
	}
	return view
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
