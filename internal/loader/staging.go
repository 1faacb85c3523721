package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
)

// Staging moves metadata files and run logs between the submission bucket
// and the worker's scratch directory.
type Staging struct {
	client *minio.Client
	bucket string
}

func NewStaging(client *minio.Client, bucket string) (*Staging, error) {
	if client == nil {
		return nil, fmt.Errorf("object store client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("submission bucket is required")
	}
	return &Staging{client: client, bucket: bucket}, nil
}

func (s *Staging) Bucket() string {
	return s.bucket
}

// ListMetadata lists object keys under the metadata folder prefix.
func (s *Staging) ListMetadata(ctx context.Context, folder string) ([]string, error) {
	keys := make([]string, 0)
	opts := minio.ListObjectsOptions{Prefix: folder, Recursive: true}
	for object := range s.client.ListObjects(ctx, s.bucket, opts) {
		if object.Err != nil {
			return nil, fmt.Errorf("list %s/%s: %w", s.bucket, folder, object.Err)
		}
		if strings.HasSuffix(object.Key, "/") {
			continue
		}
		keys = append(keys, object.Key)
	}
	return keys, nil
}

// FetchMetadata downloads every object under the metadata folder into destDir
// and returns the local paths.
func (s *Staging) FetchMetadata(ctx context.Context, folder, destDir string) ([]string, error) {
	keys, err := s.ListMetadata(ctx, folder)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no metadata files under s3://%s/%s", s.bucket, folder)
	}

	paths := make([]string, 0, len(keys))
	for _, key := range keys {
		dest := filepath.Join(destDir, path.Base(key))
		if err := s.fetchObject(ctx, key, dest); err != nil {
			return nil, err
		}
		paths = append(paths, dest)
	}
	return paths, nil
}

func (s *Staging) fetchObject(ctx context.Context, key, dest string) error {
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", s.bucket, key, err)
	}
	defer object.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("fetch %s: %w", key, err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", key, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, object); err != nil {
		return fmt.Errorf("fetch %s: %w", key, err)
	}
	return nil
}

// UploadLogs pushes every file under localDir to the given prefix in the
// submission bucket.
func (s *Staging) UploadLogs(ctx context.Context, localDir, prefix string) error {
	prefix = strings.Trim(prefix, "/")
	return filepath.WalkDir(localDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		if _, err := s.client.FPutObject(ctx, s.bucket, key, p, minio.PutObjectOptions{}); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		return nil
	})
}
