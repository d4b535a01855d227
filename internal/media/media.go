// Package media uploads user images to object storage and returns their
// public URLs.
package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNoFile is returned when Upload is given an absent file.
var ErrNoFile = errors.New("no file provided")

// File is a locally spooled upload. A nil or zero File is absent.
type File struct {
	Field       string
	Path        string
	Filename    string
	ContentType string
	Size        int64
}

// Present reports whether the file was actually uploaded.
func (f *File) Present() bool {
	return f != nil && f.Path != ""
}

// Store stores a local file and returns its public URL.
type Store interface {
	Upload(ctx context.Context, f *File) (string, error)
	Ping(ctx context.Context) error
}

// Config holds the settings for MinIO and S3 backends.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	PublicURL string
}

// ObjectKey returns a fresh key for f under images/.
func ObjectKey(f *File) string {
	ext := strings.ToLower(filepath.Ext(f.Filename))
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(f.Path))
	}
	return "images/" + uuid.NewString() + ext
}

// ContentType returns the declared content type of f, falling back to its
// extension.
func ContentType(f *File) string {
	if f.ContentType != "" {
		return f.ContentType
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func publicURL(base, bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), bucket, key)
}
