/*
Package media stores product images.

PURPOSE:
  Upload accepts an image, stores it under the "stok-barang/" folder of an
  object store and returns the URL saved in Product.ImageURL.

BACKENDS:
  S3Store    any S3-compatible service (AWS S3, MinIO)
  MemoryStore  in-process map, used when no bucket is configured
*/
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dapurkue/stockledger/inventory"
)

const (
	Folder = "stok-barang"

	// MaxImageBytes bounds a single upload.
	MaxImageBytes = 5 << 20
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ObjectStore writes one object and returns its public URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Uploader validates images and names their objects.
type Uploader struct {
	store ObjectStore
	newID func() string
}

func NewUploader(store ObjectStore) *Uploader {
	return &Uploader{store: store, newID: uuid.NewString}
}

// Upload reads at most MaxImageBytes from r. The content type is sniffed
// from the data, never taken from the client.
func (u *Uploader) Upload(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("media: read upload: %w", err)
	}
	if len(data) == 0 {
		return "", &inventory.ValidationError{Field: "file", Reason: "is required"}
	}
	if len(data) > MaxImageBytes {
		return "", &inventory.ValidationError{Field: "file", Reason: fmt.Sprintf("must be at most %d bytes", MaxImageBytes)}
	}

	contentType := http.DetectContentType(data)
	ext, ok := allowedTypes[contentType]
	if !ok {
		return "", &inventory.ValidationError{Field: "file", Reason: "must be a JPEG, PNG, GIF or WebP image"}
	}

	key := path.Join(Folder, u.newID()+ext)
	url, err := u.store.Put(ctx, key, data, contentType)
	if err != nil {
		return "", fmt.Errorf("media: store %s: %w", key, err)
	}
	return url, nil
}

// MemoryStore keeps objects in memory and serves them under BaseURL.
type MemoryStore struct {
	BaseURL string

	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{BaseURL: strings.TrimRight(baseURL, "/"), objects: make(map[string][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = bytes.Clone(data)
	return m.BaseURL + "/" + key, nil
}

// Get returns a stored object.
func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}
