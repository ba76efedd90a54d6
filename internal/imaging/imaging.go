// Package imaging checks uploaded bytes before they reach face detection.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"

	"github.com/saturnino-fabrica-de-software/facetag/internal/domain"
)

// maxPixels guards against decompression bombs hidden in small files.
const maxPixels = 50_000_000

var allowedExtensions = map[string]string{
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".png":  "png",
	".webp": "webp",
}

type Info struct {
	Format string
	Width  int
	Height int
}

// Ext is the canonical file extension for the decoded format.
func (i Info) Ext() string {
	if i.Format == "jpeg" {
		return "jpg"
	}
	return i.Format
}

func (i Info) ContentType() string {
	return "image/" + i.Format
}

// AllowedFilename reports whether the filename carries a supported extension.
func AllowedFilename(name string) bool {
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Validate decodes data fully and returns its format and size. Anything
// that is not a complete JPEG, PNG or WebP image is ErrInvalidImage.
func Validate(data []byte, maxSize int) (Info, error) {
	if len(data) == 0 {
		return Info{}, domain.ErrInvalidImage.WithError(fmt.Errorf("empty file"))
	}
	if maxSize > 0 && len(data) > maxSize {
		return Info{}, domain.ErrImageTooLarge.WithError(fmt.Errorf("%d bytes, limit %d", len(data), maxSize))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, domain.ErrInvalidImage.WithError(fmt.Errorf("decode header: %w", err))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return Info{}, domain.ErrInvalidImage.WithError(fmt.Errorf("unsupported dimensions %dx%d", cfg.Width, cfg.Height))
	}

	if _, _, err := image.Decode(bytes.NewReader(data)); err != nil {
		return Info{}, domain.ErrInvalidImage.WithError(fmt.Errorf("decode %s: %w", format, err))
	}

	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}
