package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSArchive mirrors finished videos into a bucket so they survive the
// local disk being wiped.
type GCSArchive struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCSArchive(ctx context.Context, bucket, prefix string) (*GCSArchive, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSArchive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

func (a *GCSArchive) Close() error {
	return a.client.Close()
}

func (a *GCSArchive) objectName(localPath string) string {
	if a.prefix == "" {
		return filepath.Base(localPath)
	}
	return path.Join(a.prefix, filepath.Base(localPath))
}

// Upload copies localPath into the bucket and returns the object name.
func (a *GCSArchive) Upload(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open video: %w", err)
	}
	defer func() { _ = f.Close() }()

	name := a.objectName(localPath)
	w := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "video/mp4"

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize %s: %w", name, err)
	}

	return name, nil
}

func (a *GCSArchive) Delete(ctx context.Context, object string) error {
	err := a.client.Bucket(a.bucket).Object(object).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", object, err)
	}
	return nil
}

func (a *GCSArchive) List(ctx context.Context) ([]string, error) {
	query := &storage.Query{Prefix: a.prefix}

	var names []string
	it := a.client.Bucket(a.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		if strings.EqualFold(filepath.Ext(attrs.Name), ".mp4") {
			names = append(names, attrs.Name)
		}
	}

	return names, nil
}
