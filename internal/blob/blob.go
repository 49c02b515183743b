package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrObjectNotFound is returned when a requested object does not exist.
var ErrObjectNotFound = errors.New("blob: object not found")

// Store abstracts object I/O across cloud storage backends.
type Store interface {
	// Put streams size bytes from body to key. Cancelling ctx aborts the transfer.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	// Get opens the object at key. Returns ErrObjectNotFound if it does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at key. Returns ErrObjectNotFound if it does not exist.
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// SignedURL mints a read URL for key that expires after ttl.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	Ping(ctx context.Context) error
	Close() error
}

// Backend names accepted by New.
const (
	BackendS3     = "s3"
	BackendGCS    = "gcs"
	BackendAzure  = "azure"
	BackendMemory = "memory"
)

// Config selects and configures one backend for one bucket or container.
type Config struct {
	Backend string
	Bucket  string

	// S3 and S3-compatible services.
	Region          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string //nolint:gosec // G117: storage credential config

	// GCS. Empty uses application default credentials.
	GCSCredentialsJSON []byte

	// Azure. An empty key falls back to DefaultAzureCredential, which cannot sign SAS URLs.
	AzureAccountName string
	AzureAccountKey  string //nolint:gosec // G117: storage credential config
	AzureServiceURL  string
}

// New builds the Store for cfg.Backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendS3:
		return NewS3Store(ctx, cfg)
	case BackendGCS:
		return NewGCSStore(ctx, cfg)
	case BackendAzure:
		return NewAzureStore(cfg)
	case BackendMemory:
		return NewMemoryStore("memory://" + cfg.Bucket), nil
	default:
		return nil, fmt.Errorf("blob.New: unknown backend %q", cfg.Backend)
	}
}
