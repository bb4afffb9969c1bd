package utils

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// BlobStore keeps uploaded screenshots.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// URL returns a URL the client can fetch key from.
	URL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Storage is the configured blob store.
var Storage BlobStore

// LocalStore writes blobs below Root and serves them under BaseURL.
type LocalStore struct {
	Root    string
	BaseURL string
}

func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &LocalStore{Root: root, BaseURL: baseURL}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.Root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func (s *LocalStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (s *LocalStore) URL(ctx context.Context, key string) (string, error) {
	u := &url.URL{Path: strings.TrimPrefix(key, "/")}
	return s.BaseURL + u.EscapedPath(), nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
