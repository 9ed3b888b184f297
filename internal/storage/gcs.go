package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSBackend stores blobs in a Google Cloud Storage bucket.
type GCSBackend struct {
	client *gcs.Client
	bucket string
	now    func() time.Time
}

// NewGCS uses credentialsJSON when set, application default credentials otherwise.
func NewGCS(ctx context.Context, bucket, credentialsJSON string) (*GCSBackend, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client failed: %w", err)
	}
	return &GCSBackend{client: client, bucket: bucket, now: time.Now}, nil
}

func (b *GCSBackend) Kind() Kind { return KindGCS }

func (b *GCSBackend) Write(ctx context.Context, name string, r io.Reader, _ int64, contentType string) (string, error) {
	key := NewKey(name, b.now())
	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write object failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs finalize object failed: %w", err)
	}
	return key, nil
}

func (b *GCSBackend) Open(ctx context.Context, key string) (Blob, error) {
	reader, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("gcs open object failed: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gcs read object failed: %w", err)
	}
	return NewBufferedBlob(key, data), nil
}

func (b *GCSBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.Bucket(b.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs object attrs failed: %w", err)
	}
	return true, nil
}

func (b *GCSBackend) Delete(ctx context.Context, key string) error {
	err := b.client.Bucket(b.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete object failed: %w", err)
	}
	return nil
}

func (b *GCSBackend) URL(_ context.Context, key string) (string, error) {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", b.bucket, (&url.URL{Path: key}).EscapedPath()), nil
}

func (b *GCSBackend) Close() error {
	return b.client.Close()
}
