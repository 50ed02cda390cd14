// Package local implements the storage port on the local file system. Buckets are
// directories under BaseDir.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	storage "github.com/tigerroll/surfin-etl/pkg/etl/adapter/storage"
	storageconfig "github.com/tigerroll/surfin-etl/pkg/etl/adapter/storage/config"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// ProviderType is the config type handled by this package.
const ProviderType = "local"

// tempPrefix marks in-flight uploads. Listings skip them.
const tempPrefix = ".upload-"

func init() {
	storage.RegisterFactory(ProviderType, func(_ context.Context, cfg storageconfig.StorageConfig, name string) (storage.StorageConnection, error) {
		return NewLocalAdapter(cfg, name)
	})
}

type localAdapter struct {
	root   string
	bucket string
	name   string
}

var _ storage.StorageConnection = (*localAdapter)(nil)

// NewLocalAdapter opens BaseDir as the storage root, creating it when missing.
func NewLocalAdapter(cfg storageconfig.StorageConfig, name string) (storage.StorageConnection, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage '%s': base_dir is required", name)
	}
	root, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("local storage '%s': %w", name, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("local storage '%s': cannot create %s: %w", name, root, err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("local storage '%s': %s is not a usable directory", name, root)
	}
	return &localAdapter{root: root, bucket: cfg.BucketName, name: name}, nil
}

func (a *localAdapter) Close() error { return nil }
func (a *localAdapter) Type() string { return ProviderType }
func (a *localAdapter) Name() string { return a.name }

// Upload writes to a temporary file and renames it into place, so readers never observe a
// partially written object and a retried upload simply replaces it.
func (a *localAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := a.objectPath(bucket, objectName)
	if err != nil {
		return err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("local storage '%s': %w", a.name, err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("local storage '%s': %w", a.name, err)
	}
	n, copyErr := io.Copy(tmp, data)
	closeErr := tmp.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil {
		copyErr = os.Rename(tmp.Name(), target)
	}
	if copyErr != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("local storage '%s': writing %s: %w", a.name, objectName, copyErr)
	}
	logger.Debugf("Local storage '%s': stored %s (%d bytes, %s).", a.name, target, n, contentType)
	return nil
}

func (a *localAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := a.objectPath(bucket, objectName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("local storage '%s': %w", a.name, err)
	}
	return f, nil
}

// ListObjects visits objects in lexical order.
func (a *localAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	base, err := a.objectPath(bucket, "")
	if err != nil {
		return err
	}
	var names []string
	walkErr := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == base {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		if rel = filepath.ToSlash(rel); strings.HasPrefix(rel, prefix) {
			names = append(names, rel)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("local storage '%s': listing %s: %w", a.name, prefix, walkErr)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

func (a *localAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	p, err := a.objectPath(bucket, objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("local storage '%s': %w", a.name, err)
	}
	return nil
}

// objectPath maps bucket/objectName below the root and refuses anything that escapes it.
func (a *localAdapter) objectPath(bucket, objectName string) (string, error) {
	if bucket == "" {
		bucket = a.bucket
	}
	p := filepath.Join(a.root, bucket, filepath.FromSlash(objectName))
	if p != a.root && !strings.HasPrefix(p, a.root+string(filepath.Separator)) {
		return "", fmt.Errorf("local storage '%s': object %q is outside the storage root", a.name, objectName)
	}
	return p, nil
}
