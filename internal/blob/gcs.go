package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore implements Store using Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

func NewGCSStore(ctx context.Context, cfg Config) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("blob.NewGCSStore: bucket is required")
	}

	var opts []option.ClientOption
	if len(cfg.GCSCredentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(cfg.GCSCredentialsJSON))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob.NewGCSStore: %w", err)
	}

	return &GCSStore{client: client, bucket: client.Bucket(cfg.Bucket)}, nil
}

// Put streams body to the object. A failed read cancels the upload so no
// truncated object is committed.
func (g *GCSStore) Put(ctx context.Context, key string, body io.Reader, _ int64, contentType string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, body); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("blob.GCSStore.Put: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("blob.GCSStore.Put: close: %w", err)
	}
	return nil
}

func (g *GCSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("blob.GCSStore.Get: %w", err)
	}
	return r, nil
}

func (g *GCSStore) Delete(ctx context.Context, key string) error {
	if err := g.bucket.Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("blob.GCSStore.Delete: %w", err)
	}
	return nil
}

func (g *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("blob.GCSStore.List: %w", err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func (g *GCSStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	url, err := g.bucket.SignedURL(key, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("blob.GCSStore.SignedURL: %w", err)
	}
	return url, nil
}

func (g *GCSStore) Ping(ctx context.Context) error {
	if _, err := g.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("blob.GCSStore.Ping: %w", err)
	}
	return nil
}

func (g *GCSStore) Close() error {
	return g.client.Close()
}

var _ Store = (*GCSStore)(nil)
