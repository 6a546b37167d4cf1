package services

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
)

// PopplerRasterizer shells out to pdftoppm, which renders one JPEG per page
// and zero-pads the page numbers so the listing sorts naturally.
type PopplerRasterizer struct {
	DPI int
}

func NewPopplerRasterizer() *PopplerRasterizer {
	return &PopplerRasterizer{DPI: 150}
}

func (r *PopplerRasterizer) Render(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	prefix := filepath.Join(outDir, "page")
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-jpeg",
		"-r", fmt.Sprintf("%d", r.DPI),
		pdfPath, prefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w: %s", err, out)
	}

	images, err := filepath.Glob(prefix + "-*.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to glob rendered pages: %w", err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages for %s", pdfPath)
	}
	sort.Strings(images)
	return images, nil
}
