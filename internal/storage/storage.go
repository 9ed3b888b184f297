// Package storage resolves document blobs against the configured backend.
//
// Local disk backends hand out LocalPathBlob values that are read by
// reference. Object storage backends download into a BufferedBlob. Callers
// only see the Blob interface, and the backend is fixed at startup.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidKey     = errors.New("invalid object key")
)

type Kind string

const (
	KindLocal Kind = "local"
	KindS3    Kind = "s3"
	KindGCS   Kind = "gcs"
)

// Backend stores blobs under durable keys.
type Backend interface {
	Kind() Kind
	// Write stores r under a fresh key derived from name and returns the key.
	Write(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, key string) (Blob, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	URL(ctx context.Context, key string) (string, error)
}

// Blob is a stored file ready to be read. Every Open call starts from the
// first byte.
type Blob interface {
	Key() string
	Size() int64
	Open() (io.ReadCloser, error)
}

type LocalPathBlob struct {
	key  string
	path string
	size int64
}

func NewLocalPathBlob(key, path string, size int64) *LocalPathBlob {
	return &LocalPathBlob{key: key, path: path, size: size}
}

func (b *LocalPathBlob) Key() string  { return b.key }
func (b *LocalPathBlob) Size() int64  { return b.size }
func (b *LocalPathBlob) Path() string { return b.path }

func (b *LocalPathBlob) Open() (io.ReadCloser, error) {
	f, err := os.Open(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, b.key)
		}
		return nil, fmt.Errorf("open local blob failed: %w", err)
	}
	return f, nil
}

type BufferedBlob struct {
	key  string
	data []byte
}

func NewBufferedBlob(key string, data []byte) *BufferedBlob {
	return &BufferedBlob{key: key, data: data}
}

func (b *BufferedBlob) Key() string   { return b.key }
func (b *BufferedBlob) Size() int64   { return int64(len(b.data)) }
func (b *BufferedBlob) Bytes() []byte { return b.data }

func (b *BufferedBlob) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

// NewKey builds a collision-free key that keeps the original file name as
// its last segment so the extension survives.
func NewKey(name string, now time.Time) string {
	return fmt.Sprintf("documents/templates/%d/%02d/%s/%s", now.Year(), int(now.Month()), uuid.New(), SanitizeName(name))
}

// SanitizeName reduces a client supplied file name to a safe single segment.
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			return r
		case unicode.IsSpace(r):
			return '_'
		default:
			return -1
		}
	}, name)
	cleaned = strings.TrimLeft(cleaned, ".")
	if cleaned == "" {
		return "file"
	}
	return cleaned
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return false
		}
	}
	return true
}
