package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"bizadmin-backend/internal/logging"
	"bizadmin-backend/internal/model"
	"bizadmin-backend/internal/observability/metrics"
	"bizadmin-backend/internal/pkg/pdfextract"
	"bizadmin-backend/internal/repository"
	"bizadmin-backend/internal/storage"
)

const (
	maxTitleLength    = 255
	maxCategoryLength = 100
)

// TemplateCache is the read-through cache for template projections.
type TemplateCache interface {
	Get(ctx context.Context, templateID uint, dest any) (bool, error)
	Set(ctx context.Context, templateID uint, value any) error
	Invalidate(ctx context.Context, templateID uint) error
	IsDirty(ctx context.Context, templateID uint) (bool, error)
}

// LedgerService owns the append-only version history of document templates.
type LedgerService struct {
	store           *repository.Store
	blobs           storage.Backend
	cache           TemplateCache
	metrics         *metrics.Metrics
	logger          logrus.FieldLogger
	conflictRetries int
}

type LedgerOptions struct {
	Cache           TemplateCache
	Metrics         *metrics.Metrics
	Logger          logrus.FieldLogger
	ConflictRetries int
}

type UploadInput struct {
	Title    string
	Category string
	FirmID   uint
	FileName string
	File     io.Reader
	Notes    string
	ActorID  uint
}

type UploadResult struct {
	Created  bool
	Template *model.DocumentTemplate
	Version  *model.DocumentVersion
}

// Message is the human readable outcome returned to the uploader.
func (r *UploadResult) Message() string {
	if r.Created {
		return "Template created successfully with version 1."
	}
	return fmt.Sprintf("Template versioned successfully. New version %d created and published.", r.Version.VersionNumber)
}

// Download is a resolved version ready to be streamed.
type Download struct {
	FileName    string
	ContentType string
	Blob        storage.Blob
}

func NewLedgerService(store *repository.Store, blobs storage.Backend, opts LedgerOptions) *LedgerService {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	retries := opts.ConflictRetries
	if retries < 0 {
		retries = 0
	}
	return &LedgerService{
		store:           store,
		blobs:           blobs,
		cache:           opts.Cache,
		metrics:         opts.Metrics,
		logger:          logger,
		conflictRetries: retries,
	}
}

// Upload stores the file and records it as the new published version of the
// template identified by (firm, title, category), creating the template on
// first upload.
func (s *LedgerService) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	title := strings.TrimSpace(input.Title)
	category := strings.TrimSpace(input.Category)
	switch {
	case title == "":
		return nil, s.rejectUpload(invalidInput("title is required"))
	case utf8.RuneCountInString(title) > maxTitleLength:
		return nil, s.rejectUpload(invalidInput("title exceeds 255 characters"))
	case utf8.RuneCountInString(category) > maxCategoryLength:
		return nil, s.rejectUpload(invalidInput("category exceeds 100 characters"))
	case input.FirmID == 0:
		return nil, s.rejectUpload(invalidInput("firm is required"))
	case input.File == nil:
		return nil, s.rejectUpload(invalidInput("upload_file is required"))
	}

	fileType, err := FileTypeForName(input.FileName)
	if err != nil {
		return nil, s.rejectUpload(err)
	}

	firm, err := s.store.Firms().GetByID(ctx, input.FirmID)
	if err != nil {
		s.metrics.ObserveUpload("error")
		return nil, err
	}
	if firm == nil {
		return nil, s.rejectUpload(ErrFirmNotFound)
	}

	data, err := io.ReadAll(input.File)
	if err != nil {
		return nil, s.rejectUpload(invalidInput("read upload_file failed"))
	}

	pageCount := 0
	if fileType == model.FileTypePDF {
		if pages, err := pdfextract.PageCount(data); err == nil {
			pageCount = pages
		} else {
			s.logger.WithField("file_name", input.FileName).WithError(err).Warn("pdf page count unavailable")
		}
	}

	key, err := s.blobs.Write(ctx, input.FileName, bytes.NewReader(data), int64(len(data)), ContentTypeForName(input.FileName))
	if err != nil {
		s.metrics.ObserveUpload("storage_error")
		logging.LogError(s.logger, "app", "LedgerService.Upload", "write blob", input.FileName, err)
		return nil, storageFailure("write blob", err)
	}

	draft := versionDraft{
		title:     title,
		category:  category,
		firmID:    input.FirmID,
		notes:     strings.TrimSpace(input.Notes),
		actorID:   actorRef(input.ActorID),
		fileType:  fileType,
		fileName:  storage.SanitizeName(input.FileName),
		fileKey:   key,
		fileSize:  int64(len(data)),
		pageCount: pageCount,
	}

	var result *UploadResult
	for attempt := 0; ; attempt++ {
		result, err = s.commit(ctx, draft)
		if err == nil || !errors.Is(err, repository.ErrConflict) || attempt >= s.conflictRetries {
			break
		}
		s.logger.WithFields(logrus.Fields{"title": title, "attempt": attempt + 1}).Warn("upload lost a write race, retrying")
	}
	if err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			logging.LogError(s.logger, "app", "LedgerService.Upload", "delete orphan blob", key, delErr)
		}
		if errors.Is(err, repository.ErrConflict) {
			s.metrics.ObserveUpload("conflict")
			return nil, fmt.Errorf("%w: %w", ErrTransactionConflict, err)
		}
		s.metrics.ObserveUpload("error")
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, result.Template.ID); err != nil {
			logging.LogError(s.logger, "app", "LedgerService.Upload", "invalidate template cache", result.Template.ID, err)
		}
	}

	detail, err := s.store.Templates().GetDetail(ctx, result.Template.ID)
	if err != nil {
		return nil, err
	}
	if detail != nil {
		result.Template = detail
	}

	if result.Created {
		s.metrics.ObserveUpload("created")
	} else {
		s.metrics.ObserveUpload("versioned")
	}
	s.logger.WithFields(logrus.Fields{
		"template_id": result.Template.ID,
		"version":     result.Version.VersionNumber,
		"created":     result.Created,
	}).Info("document version published")
	return result, nil
}

type versionDraft struct {
	title     string
	category  string
	firmID    uint
	notes     string
	actorID   *uint
	fileType  model.FileType
	fileName  string
	fileKey   string
	fileSize  int64
	pageCount int
}

func (s *LedgerService) commit(ctx context.Context, draft versionDraft) (*UploadResult, error) {
	result := &UploadResult{}
	err := s.store.InTx(ctx, func(tx *repository.Store) error {
		templates := tx.Templates()
		versions := tx.Versions()

		identity := IdentityKey(draft.firmID, draft.title, draft.category)
		template, err := templates.FindByIdentity(ctx, identity, s.store.LocksRows())
		if err != nil {
			return err
		}

		versionNumber := uint(1)
		if template == nil {
			template = &model.DocumentTemplate{
				FirmID:      draft.firmID,
				Title:       draft.title,
				Category:    draft.category,
				IdentityKey: identity,
				Description: draft.notes,
				CreatedByID: draft.actorID,
				UpdatedByID: draft.actorID,
			}
			if err := templates.Create(ctx, template); err != nil {
				return err
			}
			result.Created = true
		} else {
			maxVersion, err := versions.MaxVersionNumber(ctx, template.ID)
			if err != nil {
				return err
			}
			versionNumber = maxVersion + 1
			if err := versions.UnpublishAll(ctx, template.ID); err != nil {
				return err
			}
			if draft.notes != "" {
				if err := templates.UpdateDescription(ctx, template.ID, draft.notes, draft.actorID); err != nil {
					return err
				}
				template.Description = draft.notes
			}
		}

		version := &model.DocumentVersion{
			TemplateID:     template.ID,
			VersionNumber:  versionNumber,
			FileKey:        draft.fileKey,
			FileName:       draft.fileName,
			FileType:       draft.fileType,
			FileSize:       draft.fileSize,
			StorageBackend: string(s.blobs.Kind()),
			PageCount:      draft.pageCount,
			IsPublished:    true,
			CreatedByID:    draft.actorID,
			UpdatedByID:    draft.actorID,
		}
		if err := versions.Create(ctx, version); err != nil {
			return err
		}

		result.Template = template
		result.Version = version
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ResolvePublished returns the single published version of a template.
func (s *LedgerService) ResolvePublished(ctx context.Context, templateID uint) (*model.DocumentVersion, error) {
	version, err := s.store.Versions().GetPublished(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if version != nil {
		return version, nil
	}

	exists, err := s.store.Templates().Exists(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrTemplateNotFound
	}
	return nil, ErrNoPublishedVersion
}

// ResolveVersion loads a version by id. A non-zero expectedTemplateID must
// match the version's template.
func (s *LedgerService) ResolveVersion(ctx context.Context, versionID, expectedTemplateID uint) (*model.DocumentVersion, error) {
	if versionID == 0 {
		return nil, ErrVersionNotFound
	}
	version, err := s.store.Versions().GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version == nil || version.Template == nil {
		return nil, ErrVersionNotFound
	}
	if expectedTemplateID != 0 && version.TemplateID != expectedTemplateID {
		return nil, ErrVersionNotFound
	}
	return version, nil
}

// Download opens the blob of a resolved version under its attachment name.
func (s *LedgerService) Download(ctx context.Context, version *model.DocumentVersion) (*Download, error) {
	blob, err := s.blobs.Open(ctx, version.FileKey)
	if err != nil {
		logging.LogError(s.logger, "app", "LedgerService.Download", "open blob", version.FileKey, err)
		return nil, storageFailure("open blob", err)
	}
	name := OutputName(version.Template.Title, version)
	return &Download{
		FileName:    name,
		ContentType: ContentTypeForName(name),
		Blob:        blob,
	}, nil
}

func (s *LedgerService) rejectUpload(err error) error {
	s.metrics.ObserveUpload("rejected")
	return err
}

func actorRef(id uint) *uint {
	if id == 0 {
		return nil
	}
	return &id
}
