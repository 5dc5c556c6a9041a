// Package storage holds session media. Handlers and services depend only on
// MediaStore; the backing implementation is chosen at startup.
package storage

import (
	"context"
	"errors"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

const (
	FolderUploads   = "uploads"
	FolderProcessed = "processed"
	FolderPosts     = "posts"
)

var ErrNotFound = errors.New("media object not found")

type MediaStore interface {
	// Put stores data under folder and returns its locator.
	Put(ctx context.Context, folder string, data []byte, mimeType string) (string, error)
	Get(ctx context.Context, locator string) ([]byte, error)
	// Delete removes the object and reports whether it existed.
	Delete(ctx context.Context, locator string) (bool, error)
}

// newKey returns folder/<uuid><ext>. Client filenames are never used in keys.
func newKey(folder, mimeType string) string {
	folder = strings.Trim(path.Clean("/"+folder), "/")
	if folder == "" || folder == "." {
		folder = FolderUploads
	}
	return folder + "/" + uuid.NewString() + extensionFor(mimeType)
}

var preferredExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
	"video/mp4":  ".mp4",
	"audio/wav":  ".wav",
	"audio/webm": ".webm",
	"audio/mpeg": ".mp3",
}

func extensionFor(mimeType string) string {
	base, _, _ := mime.ParseMediaType(mimeType)
	if ext, ok := preferredExt[base]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// validKey rejects keys that could escape the store root.
func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	return path.Clean(key) == key && !strings.HasPrefix(key, "..")
}
