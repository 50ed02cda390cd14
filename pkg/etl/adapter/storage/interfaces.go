// Package storage defines the object storage port used for uploads and exports, plus a
// registry of backend factories.
package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	storageconfig "github.com/tigerroll/surfin-etl/pkg/etl/adapter/storage/config"
)

// StorageExecutor defines object operations.
type StorageExecutor interface {
	// Upload writes data to bucket/objectName. An empty bucket selects the configured default.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens bucket/objectName. The caller closes the reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object under prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes bucket/objectName. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is an open storage backend.
type StorageConnection interface {
	StorageExecutor
	Type() string
	Name() string
	Close() error
}

// Factory opens a StorageConnection for cfg.
type Factory func(ctx context.Context, cfg storageconfig.StorageConfig, name string) (StorageConnection, error)

var (
	factories   = make(map[string]Factory)
	factoriesMu sync.RWMutex
)

// RegisterFactory registers the factory for a storage type. Backends call it from init.
func RegisterFactory(storageType string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[storageType] = f
}

// Open creates a connection using the factory registered for cfg.Type.
func Open(ctx context.Context, cfg storageconfig.StorageConfig, name string) (StorageConnection, error) {
	factoriesMu.RLock()
	f, ok := factories[cfg.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no storage provider registered for type '%s' (connection '%s')", cfg.Type, name)
	}
	return f(ctx, cfg, name)
}
