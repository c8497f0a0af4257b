// Package storage persists uploaded photos on disk and hands back stable
// references the rest of the pipeline can use.
package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// ImageStore saves uploaded photos under a base directory.
type ImageStore struct {
	baseDir string
}

// NewImageStore creates the base directory if needed.
func NewImageStore(baseDir string) (*ImageStore, error) {
	if baseDir == "" {
		return nil, eris.New("storage: base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "storage: create dir %s", baseDir)
	}
	return &ImageStore{baseDir: baseDir}, nil
}

// allowed upload extensions; anything else is normalized to .jpg
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// Save writes the photo to disk under a generated name and returns its
// path relative to the base directory.
func (s *ImageStore) Save(r io.Reader, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !imageExts[ext] {
		ext = ".jpg"
	}
	name := uuid.New().String() + ext
	path := filepath.Join(s.baseDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", eris.Wrapf(err, "storage: create %s", path)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", eris.Wrap(err, "storage: write photo")
	}
	return name, nil
}

// Read returns the photo bytes.
func (s *ImageStore) Read(ref string) ([]byte, error) {
	data, err := os.ReadFile(s.Path(ref))
	if err != nil {
		return nil, eris.Wrapf(err, "storage: read %s", ref)
	}
	return data, nil
}

// Path returns the absolute path for a photo reference.
func (s *ImageStore) Path(ref string) string {
	return filepath.Join(s.baseDir, filepath.Base(ref))
}

// Delete removes a saved photo.
func (s *ImageStore) Delete(ref string) error {
	if err := os.Remove(s.Path(ref)); err != nil {
		return eris.Wrapf(err, "storage: delete %s", ref)
	}
	return nil
}
