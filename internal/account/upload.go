package account

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/vidtube/accounts/internal/media"
)

// Uploads spools multipart files to a local directory before they are handed
// to the media store.
type Uploads struct {
	dir      string
	maxBytes int64
}

func NewUploads(dir string, maxBytes int64) *Uploads {
	if dir == "" {
		dir = os.TempDir()
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Uploads{dir: dir, maxBytes: maxBytes}
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// Parse parses a multipart body, keeping at most maxBytes in memory.
func (u *Uploads) Parse(r *http.Request) error {
	if err := r.ParseMultipartForm(u.maxBytes); err != nil {
		return fmt.Errorf("parse multipart form: %w", err)
	}
	return nil
}

// Spool copies the named file field to the upload directory. An absent
// field yields a nil *media.File and no error.
func (u *Uploads) Spool(r *http.Request, field string) (*media.File, error) {
	src, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	defer src.Close()

	return u.spool(src, header, field)
}

func (u *Uploads) spool(src multipart.File, header *multipart.FileHeader, field string) (*media.File, error) {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	dst, err := os.CreateTemp(u.dir, "upload-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(dst.Name())
		return nil, fmt.Errorf("write temp file: %w", err)
	}

	return &media.File{
		Field:       field,
		Path:        dst.Name(),
		Filename:    filepath.Base(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Size:        n,
	}, nil
}

// Cleanup removes spooled files. It runs whether or not the upload worked.
func Cleanup(files ...*media.File) {
	for _, f := range files {
		if f.Present() {
			os.Remove(f.Path)
		}
	}
}
