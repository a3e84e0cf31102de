package repositories

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cardapio/pkg/supabase"
)

// ImageStore stores menu pictures and returns their public URL.
type ImageStore interface {
	Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error)
}

// SupabaseImageStore keeps images in a public Supabase storage bucket.
type SupabaseImageStore struct {
	bucket *supabase.BucketClient
}

// NewSupabaseImageStore creates an image store backed by bucket.
func NewSupabaseImageStore(client *supabase.Client, bucket string) *SupabaseImageStore {
	return &SupabaseImageStore{bucket: client.Storage().From(bucket)}
}

// Upload stores data and returns its public URL.
func (s *SupabaseImageStore) Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	if _, err := s.bucket.Upload(ctx, objectPath, data, contentType); err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectPath, err)
	}
	return s.bucket.GetPublicURL(objectPath), nil
}

// LocalImageStore writes images under a directory that the HTTP server
// exposes at baseURL.
type LocalImageStore struct {
	dir     string
	baseURL string
}

// NewLocalImageStore creates a store rooted at dir. baseURL is the public
// prefix the directory is served under, e.g. http://localhost:8080/images.
func NewLocalImageStore(dir, baseURL string) *LocalImageStore {
	return &LocalImageStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// Upload writes data to dir/objectPath. Existing files are not overwritten.
func (s *LocalImageStore) Upload(ctx context.Context, objectPath string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	clean := path.Clean("/" + objectPath)[1:]
	if clean == "" || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}

	dst := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", clean, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", clean, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", clean, err)
	}

	return s.baseURL + "/" + clean, nil
}
