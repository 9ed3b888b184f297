package app

import (
	"bytes"
	"context"
	"errors"
	"hash/crc32"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"bizadmin-backend/internal/logging"
	"bizadmin-backend/internal/model"
	"bizadmin-backend/internal/observability/metrics"
	"bizadmin-backend/internal/storage"
)

// VersionResolver is the part of the ledger the archive assembler reads from.
type VersionResolver interface {
	ResolveVersion(ctx context.Context, versionID, expectedTemplateID uint) (*model.DocumentVersion, error)
	ResolvePublished(ctx context.Context, templateID uint) (*model.DocumentVersion, error)
}

type ArchiveRequest struct {
	VersionIDs  []uint `json:"version_ids"`
	TemplateIDs []uint `json:"template_ids"`
}

type SkippedEntry struct {
	Name      string
	VersionID uint
	Reason    string
}

type Archive struct {
	Name    string
	Data    []byte
	Entries []string
	Skipped []SkippedEntry
}

// ArchiveService bundles resolved versions into one zip. Blobs are fetched
// concurrently; entries are written in request order.
type ArchiveService struct {
	resolver    VersionResolver
	blobs       storage.Backend
	concurrency int
	metrics     *metrics.Metrics
	logger      logrus.FieldLogger
}

func NewArchiveService(resolver VersionResolver, blobs storage.Backend, concurrency int, m *metrics.Metrics, logger logrus.FieldLogger) *ArchiveService {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &ArchiveService{
		resolver:    resolver,
		blobs:       blobs,
		concurrency: concurrency,
		metrics:     m,
		logger:      logger,
	}
}

type archiveCandidate struct {
	name    string
	version *model.DocumentVersion
}

type fetchResult struct {
	blob storage.Blob
	err  error
}

func (s *ArchiveService) Build(ctx context.Context, req ArchiveRequest) (*Archive, error) {
	start := time.Now()
	archive, err := s.build(ctx, req)
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNoSelection):
		result = "no_selection"
	case errors.Is(err, ErrEmptyArchive):
		result = "empty"
	default:
		result = "error"
	}
	s.metrics.ObserveArchiveBuild(result, time.Since(start))
	return archive, err
}

func (s *ArchiveService) build(ctx context.Context, req ArchiveRequest) (*Archive, error) {
	if len(req.VersionIDs) == 0 && len(req.TemplateIDs) == 0 {
		return nil, ErrNoSelection
	}

	candidates, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrEmptyArchive
	}

	fetched := s.fetch(ctx, candidates)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	archive := &Archive{Name: ArchiveFileName}
	added := make(map[string]struct{}, len(candidates))

	for _, c := range candidates {
		if _, dup := added[c.name]; dup {
			s.metrics.ObserveArchiveEntry("duplicate")
			continue
		}

		res := fetched[c.version.ID]
		var rc io.ReadCloser
		err := res.err
		if err == nil {
			rc, err = res.blob.Open()
		}
		if err != nil {
			s.skip(archive, c, err)
			continue
		}

		entry, err := stageEntry(c, rc)
		rc.Close()
		if err != nil {
			s.skip(archive, c, err)
			continue
		}
		w, err := zw.CreateRaw(entry.header)
		if err != nil {
			return nil, storageFailure("create archive entry", err)
		}
		if _, err := w.Write(entry.data); err != nil {
			return nil, storageFailure("write archive entry "+c.name, err)
		}

		added[c.name] = struct{}{}
		archive.Entries = append(archive.Entries, c.name)
		s.metrics.ObserveArchiveEntry("added")
	}

	if len(archive.Entries) == 0 {
		return nil, ErrEmptyArchive
	}
	if err := zw.Close(); err != nil {
		return nil, storageFailure("finalize archive", err)
	}
	archive.Data = buf.Bytes()

	s.logger.WithFields(logrus.Fields{
		"entries": len(archive.Entries),
		"skipped": len(archive.Skipped),
		"bytes":   len(archive.Data),
	}).Info("document archive built")
	return archive, nil
}

// resolve keeps version_ids before template_ids. Unknown ids are skipped.
func (s *ArchiveService) resolve(ctx context.Context, req ArchiveRequest) ([]archiveCandidate, error) {
	candidates := make([]archiveCandidate, 0, len(req.VersionIDs)+len(req.TemplateIDs))

	for _, id := range req.VersionIDs {
		version, err := s.resolver.ResolveVersion(ctx, id, 0)
		if errors.Is(err, ErrNotFound) {
			s.logger.WithField("version_id", id).Info("archive skips unknown version")
			continue
		}
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, archiveCandidate{name: OutputName(version.Template.Title, version), version: version})
	}

	for _, id := range req.TemplateIDs {
		version, err := s.resolver.ResolvePublished(ctx, id)
		if errors.Is(err, ErrNotFound) {
			s.logger.WithField("template_id", id).WithError(err).Info("archive skips template")
			continue
		}
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, archiveCandidate{name: OutputName(version.Template.Title, version), version: version})
	}
	return candidates, nil
}

// fetch opens each distinct version once. A failed fetch only affects its
// own entries.
func (s *ArchiveService) fetch(ctx context.Context, candidates []archiveCandidate) map[uint]fetchResult {
	unique := make([]*model.DocumentVersion, 0, len(candidates))
	seen := make(map[uint]struct{}, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.version.ID]; ok {
			continue
		}
		seen[c.version.ID] = struct{}{}
		unique = append(unique, c.version)
	}

	results := make([]fetchResult, len(unique))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, version := range unique {
		g.Go(func() error {
			blob, err := s.blobs.Open(ctx, version.FileKey)
			results[i] = fetchResult{blob: blob, err: err}
			return nil
		})
	}
	_ = g.Wait()

	byVersion := make(map[uint]fetchResult, len(unique))
	for i, version := range unique {
		byVersion[version.ID] = results[i]
	}
	return byVersion
}

type stagedEntry struct {
	header *zip.FileHeader
	data   []byte
}

// stageEntry compresses one blob completely before anything reaches the
// archive, so a reader failing midway leaves the zip untouched.
func stageEntry(c archiveCandidate, r io.Reader) (*stagedEntry, error) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	crc := crc32.NewIEEE()
	n, err := io.Copy(io.MultiWriter(fw, crc), r)
	if err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}

	header := &zip.FileHeader{
		Name:               c.name,
		Method:             zip.Deflate,
		CRC32:              crc.Sum32(),
		CompressedSize64:   uint64(buf.Len()),
		UncompressedSize64: uint64(n),
	}
	header.SetModTime(c.version.CreatedAt.UTC())
	return &stagedEntry{header: header, data: buf.Bytes()}, nil
}

func (s *ArchiveService) skip(archive *Archive, c archiveCandidate, err error) {
	logging.LogError(s.logger, "app", "ArchiveService.Build", "skip archive entry", c.version.FileKey, err)
	archive.Skipped = append(archive.Skipped, SkippedEntry{Name: c.name, VersionID: c.version.ID, Reason: err.Error()})
	s.metrics.ObserveArchiveEntry("skipped")
}
