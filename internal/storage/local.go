package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local stores media on disk and serves locators under baseURL.
type Local struct {
	root    string
	baseURL string
}

// NewLocal creates root if needed. baseURL is the public prefix the HTTP
// layer serves root from, for example "http://localhost:8080/media".
func NewLocal(root, baseURL string) (*Local, error) {
	root = filepath.Clean(strings.TrimSpace(root))
	if root == "" || root == "." {
		return nil, errors.New("local storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Local{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *Local) Root() string { return s.root }

func (s *Local) Put(ctx context.Context, folder string, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := newKey(folder, mimeType)
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create media folder: %w", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write media: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit media: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

func (s *Local) Get(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.pathFor(locator)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *Local) Delete(ctx context.Context, locator string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := s.pathFor(locator)
	if err != nil {
		return false, err
	}
	err = os.Remove(full)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

func (s *Local) pathFor(locator string) (string, error) {
	key := strings.TrimPrefix(locator, s.baseURL)
	key = strings.TrimPrefix(key, "/")
	if !validKey(key) {
		return "", fmt.Errorf("invalid media locator %q", locator)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}
