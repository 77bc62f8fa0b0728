package uploads

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Upload describes a stored file. ResourceType is one of image, video or
// raw and decides which attachment slot a message carries the URL in.
type Upload struct {
	URL          string
	ResourceType string
	Size         int64
}

// Store produces a servable URL for an uploaded file.
type Store interface {
	Save(filename, contentType string, r io.Reader) (Upload, error)
}

// DiskStore writes uploads to a local directory served at baseURL.
type DiskStore struct {
	dir     string
	baseURL string
	log     *log.Logger
}

func NewDiskStore(dir, baseURL string, logger *log.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	return &DiskStore{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		log:     logger,
	}, nil
}

func (ds *DiskStore) Save(filename, contentType string, r io.Reader) (Upload, error) {
	// uploads never keep the client-supplied name
	name := uuid.NewString() + sanitizeExt(filename)

	f, err := os.Create(filepath.Join(ds.dir, name))
	if err != nil {
		return Upload{}, fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(f.Name())
		return Upload{}, fmt.Errorf("write upload: %w", err)
	}

	ds.log.Printf("stored upload %s (%d bytes)", name, size)

	return Upload{
		URL:          ds.baseURL + "/" + name,
		ResourceType: ResourceType(contentType),
		Size:         size,
	}, nil
}

// ResourceType maps a MIME content type onto the attachment category.
func ResourceType(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return "image"
	case strings.HasPrefix(contentType, "video/"):
		return "video"
	default:
		return "raw"
	}
}

func sanitizeExt(filename string) string {
	ext := filepath.Ext(filepath.Base(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}
