package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bizadmin-backend/internal/model"
	"bizadmin-backend/internal/repository"
	"bizadmin-backend/internal/storage"
)

type ledgerFixture struct {
	db     *gorm.DB
	store  *repository.Store
	blobs  *countingBackend
	cache  *memoryCache
	ledger *LedgerService
	firm   *model.Firm
	user   *model.User
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

// newFileTestDB opens a sqlite file shared by several pooled connections.
// Writers take the lock at BEGIN and wait for each other.
func newFileTestDB(t *testing.T, conns int) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "ledger.db") +
		"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.AllModels()...))
	return db
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	return newLedgerFixtureOn(t, newTestDB(t))
}

func newLedgerFixtureOn(t *testing.T, db *gorm.DB) *ledgerFixture {
	t.Helper()
	local, err := storage.NewLocal(t.TempDir(), "/media/")
	require.NoError(t, err)

	f := &ledgerFixture{
		db:    db,
		store: repository.NewStore(db),
		blobs: &countingBackend{Backend: local, failOpen: map[string]error{}},
		cache: newMemoryCache(),
		firm:  &model.Firm{FirmName: "Acme Infra"},
		user:  &model.User{Username: "owner", Email: "owner@example.com", PasswordHash: "x", IsSuperuser: true},
	}
	require.NoError(t, db.Create(f.firm).Error)
	require.NoError(t, db.Create(f.user).Error)
	f.ledger = NewLedgerService(f.store, f.blobs, LedgerOptions{Cache: f.cache, ConflictRetries: 1})
	return f
}

func (f *ledgerFixture) upload(t *testing.T, title, category, fileName, body, notes string) *UploadResult {
	t.Helper()
	res, err := f.ledger.Upload(context.Background(), UploadInput{
		Title:    title,
		Category: category,
		FirmID:   f.firm.ID,
		FileName: fileName,
		File:     strings.NewReader(body),
		Notes:    notes,
		ActorID:  f.user.ID,
	})
	require.NoError(t, err)
	return res
}

func (f *ledgerFixture) countRows(t *testing.T, value any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(value).Count(&n).Error)
	return n
}

// countingBackend wraps a real backend and fails selected operations.
type countingBackend struct {
	storage.Backend
	writes   atomic.Int32
	opens    atomic.Int32
	deletes  atomic.Int32
	writeErr error

	mu          sync.Mutex
	failOpen    map[string]error
	failRead    map[string]error
	failMidRead map[string]error
}

func (b *countingBackend) Write(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	b.writes.Add(1)
	if b.writeErr != nil {
		return "", b.writeErr
	}
	return b.Backend.Write(ctx, name, r, size, contentType)
}

func (b *countingBackend) Open(ctx context.Context, key string) (storage.Blob, error) {
	b.opens.Add(1)
	b.mu.Lock()
	openErr, readErr, midErr := b.failOpen[key], b.failRead[key], b.failMidRead[key]
	b.mu.Unlock()
	if openErr != nil {
		return nil, openErr
	}
	blob, err := b.Backend.Open(ctx, key)
	switch {
	case err != nil:
		return nil, err
	case readErr != nil:
		return brokenBlob{Blob: blob, err: readErr}, nil
	case midErr != nil:
		return truncatedBlob{Blob: blob, err: midErr}, nil
	}
	return blob, nil
}

func (b *countingBackend) Delete(ctx context.Context, key string) error {
	b.deletes.Add(1)
	return b.Backend.Delete(ctx, key)
}

func (b *countingBackend) breakOpen(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failOpen[key] = err
}

// breakRead makes Blob.Open fail for key.
func (b *countingBackend) breakRead(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failRead == nil {
		b.failRead = map[string]error{}
	}
	b.failRead[key] = err
}

// breakMidRead lets Blob.Open succeed for key, then fails the reader after
// the first few bytes.
func (b *countingBackend) breakMidRead(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failMidRead == nil {
		b.failMidRead = map[string]error{}
	}
	b.failMidRead[key] = err
}

type brokenBlob struct {
	storage.Blob
	err error
}

func (b brokenBlob) Open() (io.ReadCloser, error) { return nil, b.err }

type truncatedBlob struct {
	storage.Blob
	err error
}

func (b truncatedBlob) Open() (io.ReadCloser, error) {
	return io.NopCloser(io.MultiReader(strings.NewReader("partial"), &failingReader{err: b.err})), nil
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }

// memoryCache mirrors the redis cache semantics in process.
type memoryCache struct {
	mu          sync.Mutex
	entries     map[uint][]byte
	dirty       map[uint]bool
	invalidated []uint
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[uint][]byte{}, dirty: map[uint]bool{}}
}

func (c *memoryCache) Get(_ context.Context, id uint, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[id]
	if !ok {
		return false, nil
	}
	return true, jsonDecode(raw, dest)
}

func (c *memoryCache) Set(_ context.Context, id uint, value any) error {
	raw, err := jsonEncode(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = raw
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, id uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.dirty[id] = true
	c.invalidated = append(c.invalidated, id)
	return nil
}

func (c *memoryCache) IsDirty(_ context.Context, id uint) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty[id], nil
}

func (c *memoryCache) clearDirty() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = map[uint]bool{}
}

// failVersionInserts makes the next n inserts into document_versions fail
// the way sqlite reports a unique violation.
func failVersionInserts(t *testing.T, db *gorm.DB, n int) *atomic.Int32 {
	t.Helper()
	var remaining atomic.Int32
	remaining.Store(int32(n))
	err := db.Callback().Create().Before("gorm:create").Register("test:version_conflict", func(tx *gorm.DB) {
		if tx.Statement.Table == "document_versions" && remaining.Add(-1) >= 0 {
			_ = tx.AddError(errors.New("UNIQUE constraint failed: document_versions.template_id, document_versions.version_number"))
		}
	})
	require.NoError(t, err)
	return &remaining
}

func readAll(t *testing.T, blob storage.Blob) []byte {
	t.Helper()
	rc, err := blob.Open()
	require.NoError(t, err)
	defer rc.Close()
	var buf bytes.Buffer
	_, err = io.Copy(&buf, rc)
	require.NoError(t, err)
	return buf.Bytes()
}

func jsonEncode(v any) ([]byte, error) { return json.Marshal(v) }

func jsonDecode(raw []byte, dest any) error { return json.Unmarshal(raw, dest) }
