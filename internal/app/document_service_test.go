package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bizadmin-backend/internal/model"
	"bizadmin-backend/internal/storage"
)

func TestUploadCreatesTemplateWithPublishedFirstVersion(t *testing.T) {
	f := newLedgerFixture(t)

	res := f.upload(t, "AMC Service Agreement", "Contracts", "agreement.pdf", "%PDF-1.4 one", "initial draft")

	assert.True(t, res.Created)
	assert.Equal(t, "Template created successfully with version 1.", res.Message())
	assert.EqualValues(t, 1, res.Version.VersionNumber)
	assert.True(t, res.Version.IsPublished)
	assert.Equal(t, model.FileTypePDF, res.Version.FileType)
	assert.Equal(t, "initial draft", res.Template.Description)
	assert.Equal(t, "Contracts", res.Template.Category)
	require.NotNil(t, res.Template.CreatedByID)
	assert.Equal(t, f.user.ID, *res.Template.CreatedByID)
	require.Len(t, res.Template.Versions, 1)

	blob, err := f.blobs.Open(context.Background(), res.Version.FileKey)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 one", string(readAll(t, blob)))
}

func TestUploadVersionsExistingTemplate(t *testing.T) {
	f := newLedgerFixture(t)
	first := f.upload(t, "Offer Letter", "HR", "offer.docx", "v1", "first")
	second := f.upload(t, "Offer Letter", "HR", "offer.docx", "v2", "")
	third := f.upload(t, "Offer Letter", "HR", "offer-final.doc", "v3", "signed copy")

	assert.False(t, second.Created)
	assert.Equal(t, first.Template.ID, second.Template.ID)
	assert.Equal(t, first.Template.ID, third.Template.ID)
	assert.EqualValues(t, 2, second.Version.VersionNumber)
	assert.EqualValues(t, 3, third.Version.VersionNumber)
	assert.Equal(t, "Template versioned successfully. New version 3 created and published.", third.Message())
	assert.Equal(t, model.FileTypeDOCX, third.Version.FileType)

	// empty notes keep the description, non-empty notes replace it
	assert.Equal(t, "first", second.Template.Description)
	assert.Equal(t, "signed copy", third.Template.Description)

	versions, err := f.store.Versions().ListByTemplateID(context.Background(), first.Template.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	published := 0
	for i, v := range versions {
		assert.EqualValues(t, i+1, v.VersionNumber)
		if v.IsPublished {
			published++
			assert.EqualValues(t, 3, v.VersionNumber)
		}
	}
	assert.Equal(t, 1, published)
	assert.EqualValues(t, 1, f.countRows(t, &model.DocumentTemplate{}))
}

func TestUploadIdentityIsExact(t *testing.T) {
	f := newLedgerFixture(t)
	other := &model.Firm{FirmName: "Other Firm"}
	require.NoError(t, f.db.Create(other).Error)

	a := f.upload(t, "Policy", "HR", "p.pdf", "a", "")
	b := f.upload(t, "policy", "HR", "p.pdf", "b", "")
	c := f.upload(t, "Policy", "", "p.pdf", "c", "")
	d := f.upload(t, "  Policy ", " HR ", "p.pdf", "d", "")

	res, err := f.ledger.Upload(context.Background(), UploadInput{
		Title: "Policy", Category: "HR", FirmID: other.ID, FileName: "p.pdf", File: strings.NewReader("e"),
	})
	require.NoError(t, err)

	assert.True(t, b.Created)
	assert.True(t, c.Created)
	assert.True(t, res.Created)
	assert.NotEqual(t, a.Template.ID, b.Template.ID)
	assert.NotEqual(t, a.Template.ID, c.Template.ID)
	// surrounding whitespace is trimmed before matching
	assert.False(t, d.Created)
	assert.Equal(t, a.Template.ID, d.Template.ID)
	assert.Equal(t, "", c.Template.Category)
	assert.Nil(t, res.Template.CreatedByID)
}

func TestUploadRejectsUnsupportedTypeWithoutSideEffects(t *testing.T) {
	f := newLedgerFixture(t)

	for _, name := range []string{"sheet.xlsx", "photo.png", "README"} {
		_, err := f.ledger.Upload(context.Background(), UploadInput{
			Title: "Rates", Category: "Finance", FirmID: f.firm.ID, FileName: name, File: strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, ErrUnsupportedFileType, name)
	}

	assert.EqualValues(t, 0, f.blobs.writes.Load())
	assert.EqualValues(t, 0, f.countRows(t, &model.DocumentTemplate{}))
	assert.EqualValues(t, 0, f.countRows(t, &model.DocumentVersion{}))
}

func TestUploadAcceptsBareTypeName(t *testing.T) {
	f := newLedgerFixture(t)

	res := f.upload(t, "Scan", "", "PDF", "%PDF-1.4", "")
	assert.Equal(t, model.FileTypePDF, res.Version.FileType)
	assert.Equal(t, "Scan_v1.pdf", OutputName(res.Template.Title, res.Version))
}

func TestUploadValidatesInput(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	cases := map[string]UploadInput{
		"missing title":   {Category: "HR", FirmID: f.firm.ID, FileName: "a.pdf", File: strings.NewReader("x")},
		"long title":      {Title: strings.Repeat("t", 256), FirmID: f.firm.ID, FileName: "a.pdf", File: strings.NewReader("x")},
		"long category":   {Title: "t", Category: strings.Repeat("c", 101), FirmID: f.firm.ID, FileName: "a.pdf", File: strings.NewReader("x")},
		"missing firm":    {Title: "t", FileName: "a.pdf", File: strings.NewReader("x")},
		"missing file":    {Title: "t", FirmID: f.firm.ID, FileName: "a.pdf"},
		"firm not exists": {Title: "t", FirmID: f.firm.ID + 100, FileName: "a.pdf", File: strings.NewReader("x")},
	}
	for name, input := range cases {
		_, err := f.ledger.Upload(ctx, input)
		assert.ErrorIs(t, err, ErrInvalidInput, name)
	}

	_, err := f.ledger.Upload(ctx, UploadInput{Title: "t", FirmID: f.firm.ID + 100, FileName: "a.pdf", File: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrFirmNotFound)
	assert.EqualValues(t, 0, f.blobs.writes.Load())
}

func TestUploadStorageFailureLeavesLedgerUntouched(t *testing.T) {
	f := newLedgerFixture(t)
	f.upload(t, "Policy", "HR", "p.pdf", "v1", "")
	f.blobs.writeErr = errors.New("disk full")

	_, err := f.ledger.Upload(context.Background(), UploadInput{
		Title: "Policy", Category: "HR", FirmID: f.firm.ID, FileName: "p.pdf", File: strings.NewReader("v2"),
	})
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.EqualValues(t, 1, f.countRows(t, &model.DocumentVersion{}))

	published, err := f.ledger.ResolvePublished(context.Background(), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, published.VersionNumber)
}

func TestUploadRetriesOnceAfterConflict(t *testing.T) {
	f := newLedgerFixture(t)
	f.upload(t, "Policy", "HR", "p.pdf", "v1", "")
	failVersionInserts(t, f.db, 1)

	res := f.upload(t, "Policy", "HR", "p.pdf", "v2", "")

	assert.EqualValues(t, 2, res.Version.VersionNumber)
	assert.EqualValues(t, 2, f.blobs.writes.Load(), "retry reuses the stored blob")
	assert.EqualValues(t, 0, f.blobs.deletes.Load())
}

func TestUploadSurfacesPersistentConflict(t *testing.T) {
	f := newLedgerFixture(t)
	f.upload(t, "Policy", "HR", "p.pdf", "v1", "")
	failVersionInserts(t, f.db, 5)

	_, err := f.ledger.Upload(context.Background(), UploadInput{
		Title: "Policy", Category: "HR", FirmID: f.firm.ID, FileName: "p.pdf", File: strings.NewReader("v2"),
	})
	assert.ErrorIs(t, err, ErrTransactionConflict)
	assert.EqualValues(t, 1, f.blobs.deletes.Load(), "orphaned blob is removed")

	versions, err := f.store.Versions().ListByTemplateID(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.True(t, versions[0].IsPublished, "rolled back unpublish must not leave the template without a published version")
}

func TestConcurrentUploadsKeepOnePublishedVersion(t *testing.T) {
	f := newLedgerFixtureOn(t, newFileTestDB(t, 4))
	f.ledger = NewLedgerService(f.store, f.blobs, LedgerOptions{ConflictRetries: 3})

	const uploads = 12
	errs := make([]error, uploads)
	var wg sync.WaitGroup
	for i := range uploads {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.ledger.Upload(context.Background(), UploadInput{
				Title:    "Site Survey",
				Category: "Projects",
				FirmID:   f.firm.ID,
				FileName: "survey.pdf",
				File:     strings.NewReader(fmt.Sprintf("survey %d", i)),
				ActorID:  f.user.ID,
			})
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrTransactionConflict)
	}
	require.Positive(t, succeeded)

	assert.EqualValues(t, 1, f.countRows(t, &model.DocumentTemplate{}))

	var versions []model.DocumentVersion
	require.NoError(t, f.db.Order("version_number").Find(&versions).Error)
	require.Len(t, versions, succeeded)
	published := 0
	for i, v := range versions {
		assert.EqualValues(t, i+1, v.VersionNumber, "version numbers are dense and unique")
		if v.IsPublished {
			published++
			assert.EqualValues(t, succeeded, v.VersionNumber, "the latest version is the published one")
		}
	}
	assert.Equal(t, 1, published)
}

func TestUploadInvalidatesTemplateCache(t *testing.T) {
	f := newLedgerFixture(t)
	res := f.upload(t, "Policy", "HR", "p.pdf", "v1", "")
	f.upload(t, "Policy", "HR", "p.pdf", "v2", "")

	assert.Equal(t, []uint{res.Template.ID, res.Template.ID}, f.cache.invalidated)
}

func TestResolvePublished(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.upload(t, "Policy", "HR", "p.pdf", "v1", "")
	res := f.upload(t, "Policy", "HR", "p.pdf", "v2", "")

	version, err := f.ledger.ResolvePublished(ctx, res.Template.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Version.ID, version.ID)
	require.NotNil(t, version.Template)
	assert.Equal(t, "Policy", version.Template.Title)

	_, err = f.ledger.ResolvePublished(ctx, 999)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	empty := &model.DocumentTemplate{FirmID: f.firm.ID, Title: "Empty", IdentityKey: IdentityKey(f.firm.ID, "Empty", "")}
	require.NoError(t, f.db.Create(empty).Error)
	_, err = f.ledger.ResolvePublished(ctx, empty.ID)
	assert.ErrorIs(t, err, ErrNoPublishedVersion)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveVersion(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	a := f.upload(t, "Policy", "HR", "p.pdf", "v1", "")
	b := f.upload(t, "Manual", "Ops", "m.pdf", "v1", "")

	version, err := f.ledger.ResolveVersion(ctx, a.Version.ID, a.Template.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Version.ID, version.ID)

	_, err = f.ledger.ResolveVersion(ctx, a.Version.ID, b.Template.ID)
	assert.ErrorIs(t, err, ErrVersionNotFound)

	_, err = f.ledger.ResolveVersion(ctx, 999, 0)
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestDownloadNamesAttachment(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	f.upload(t, "Policy", "HR", "p.pdf", "v1", "")
	res := f.upload(t, "Policy", "HR", "p.pdf", "second", "")

	version, err := f.ledger.ResolvePublished(ctx, res.Template.ID)
	require.NoError(t, err)
	dl, err := f.ledger.Download(ctx, version)
	require.NoError(t, err)
	assert.Equal(t, "Policy_v2.pdf", dl.FileName)
	assert.Equal(t, "application/pdf", dl.ContentType)
	assert.Equal(t, "second", string(readAll(t, dl.Blob)))

	f.blobs.breakOpen(version.FileKey, storage.ErrObjectNotFound)
	_, err = f.ledger.Download(ctx, version)
	assert.ErrorIs(t, err, ErrStorageFailure)
}
