package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	azblobblob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
)

// AzureStore implements Store using Azure Blob Storage.
type AzureStore struct {
	client     *azblob.Client
	serviceURL string
	container  string
	// sharedKey is nil under workload identity; SignedURL then fails.
	sharedKey *azblob.SharedKeyCredential
}

func NewAzureStore(cfg Config) (*AzureStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("blob.NewAzureStore: container is required")
	}
	if cfg.AzureAccountName == "" {
		return nil, errors.New("blob.NewAzureStore: account name is required")
	}

	serviceURL := cfg.AzureServiceURL
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AzureAccountName)
	}
	serviceURL = strings.TrimSuffix(serviceURL, "/")

	store := &AzureStore{serviceURL: serviceURL, container: cfg.Bucket}

	var err error
	if cfg.AzureAccountKey != "" {
		store.sharedKey, err = azblob.NewSharedKeyCredential(cfg.AzureAccountName, cfg.AzureAccountKey)
		if err != nil {
			return nil, fmt.Errorf("blob.NewAzureStore: shared key credential: %w", err)
		}
		store.client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, store.sharedKey, nil)
	} else {
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("blob.NewAzureStore: default credential: %w", credErr)
		}
		store.client, err = azblob.NewClient(serviceURL, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("blob.NewAzureStore: %w", err)
	}

	return store, nil
}

func (a *AzureStore) Put(ctx context.Context, key string, body io.Reader, _ int64, contentType string) error {
	var opts *azblob.UploadStreamOptions
	if contentType != "" {
		opts = &azblob.UploadStreamOptions{
			HTTPHeaders: &azblobblob.HTTPHeaders{BlobContentType: &contentType},
		}
	}
	if _, err := a.client.UploadStream(ctx, a.container, key, body, opts); err != nil {
		return fmt.Errorf("blob.AzureStore.Put: %w", err)
	}
	return nil
}

func (a *AzureStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("blob.AzureStore.Get: %w", err)
	}
	return resp.Body, nil
}

func (a *AzureStore) Delete(ctx context.Context, key string) error {
	if _, err := a.client.DeleteBlob(ctx, a.container, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("blob.AzureStore.Delete: %w", err)
	}
	return nil
}

func (a *AzureStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("blob.AzureStore.List: %w", err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, *item.Name)
			}
		}
	}
	return keys, nil
}

func (a *AzureStore) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if a.sharedKey == nil {
		return "", errors.New("blob.AzureStore.SignedURL: SAS signing requires an account key")
	}

	now := time.Now().UTC()
	params, err := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     now.Add(-5 * time.Minute), // clock skew
		ExpiryTime:    now.Add(ttl),
		Permissions:   (&sas.BlobPermissions{Read: true}).String(),
		ContainerName: a.container,
		BlobName:      key,
	}.SignWithSharedKey(a.sharedKey)
	if err != nil {
		return "", fmt.Errorf("blob.AzureStore.SignedURL: sign: %w", err)
	}

	return a.serviceURL + "/" + url.PathEscape(a.container) + "/" + escapeBlobPath(key) + "?" + params.Encode(), nil
}

func (a *AzureStore) Ping(ctx context.Context) error {
	maxResults := int32(1)
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		MaxResults: &maxResults,
	})
	if pager.More() {
		if _, err := pager.NextPage(ctx); err != nil {
			return fmt.Errorf("blob.AzureStore.Ping: %w", err)
		}
	}
	return nil
}

func (a *AzureStore) Close() error {
	return nil
}

func escapeBlobPath(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var _ Store = (*AzureStore)(nil)
