package processor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
)

// CropDumper writes line crops to disk as lossless WebP for inspection.
type CropDumper struct {
	dir string
}

// NewCropDumper returns nil when dir is empty, which disables dumping.
func NewCropDumper(dir string) *CropDumper {
	if dir == "" {
		return nil
	}
	return &CropDumper{dir: dir}
}

// Dump writes every crop into a fresh subdirectory and returns its path.
func (d *CropDumper) Dump(crops []LineCrop) (string, error) {
	if d == nil {
		return "", nil
	}
	out := filepath.Join(d.dir, uuid.NewString())
	if err := os.MkdirAll(out, 0o755); err != nil {
		return "", fmt.Errorf("create crop dir: %w", err)
	}

	for i, crop := range crops {
		path := filepath.Join(out, fmt.Sprintf("line_%03d_y%d.webp", i, crop.Bounds.Min.Y))
		if err := writeWebP(path, crop); err != nil {
			return out, err
		}
	}
	return out, nil
}

func writeWebP(path string, crop LineCrop) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := webp.Encode(f, crop.Image, &webp.Options{Lossless: true}); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
