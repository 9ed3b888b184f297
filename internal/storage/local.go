package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalBackend keeps blobs under a root directory on disk.
type LocalBackend struct {
	root          string
	publicBaseURL string
	now           func() time.Time
}

func NewLocal(root, publicBaseURL string) (*LocalBackend, error) {
	if root == "" {
		return nil, errors.New("local storage root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create local storage root failed: %w", err)
	}
	return &LocalBackend{root: root, publicBaseURL: strings.TrimRight(publicBaseURL, "/"), now: time.Now}, nil
}

func (b *LocalBackend) Kind() Kind { return KindLocal }

func (b *LocalBackend) Write(ctx context.Context, name string, r io.Reader, _ int64, _ string) (string, error) {
	key := NewKey(name, b.now())
	target, err := b.pathFor(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create blob directory failed: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob failed: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := io.Copy(tmp, readerWithContext(ctx, r)); err != nil {
		cleanup()
		return "", fmt.Errorf("write blob failed: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("sync blob failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close blob failed: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("publish blob failed: %w", err)
	}
	return key, nil
}

func (b *LocalBackend) Open(_ context.Context, key string) (Blob, error) {
	target, err := b.pathFor(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("stat blob failed: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return NewLocalPathBlob(key, target, info.Size()), nil
}

func (b *LocalBackend) Exists(_ context.Context, key string) (bool, error) {
	target, err := b.pathFor(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat blob failed: %w", err)
	}
	return !info.IsDir(), nil
}

func (b *LocalBackend) Delete(_ context.Context, key string) error {
	target, err := b.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob failed: %w", err)
	}
	return nil
}

func (b *LocalBackend) URL(_ context.Context, key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return b.publicBaseURL + "/" + strings.Join(parts, "/"), nil
}

func (b *LocalBackend) pathFor(key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(b.root, filepath.FromSlash(key)), nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
