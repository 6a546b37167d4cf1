package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"github.com/yqms/instructionflow/internal/apperr"
	"github.com/yqms/instructionflow/internal/gcp"
	"github.com/yqms/instructionflow/internal/models"
)

type RasterizerConfig struct {
	ImagesBucket string
}

// RasterizerService owns the uploaded->imageExtracted transition: fetch the
// source PDF, render every page as a JPEG and store them under the document's
// prefix.
type RasterizerService struct {
	blobs      BlobStore
	documents  DocumentRepo
	rasterizer Rasterizer
	config     RasterizerConfig
}

func NewRasterizerService(ctx context.Context, documents DocumentRepo, blobs BlobStore, rasterizer Rasterizer) (*RasterizerService, error) {
	config := RasterizerConfig{
		ImagesBucket: gcp.GetEnv("IMAGES_BUCKET", ""),
	}
	if config.ImagesBucket == "" {
		return nil, fmt.Errorf("IMAGES_BUCKET environment variable must be set")
	}

	f := &RasterizerService{
		blobs:      blobs,
		documents:  documents,
		rasterizer: rasterizer,
		config:     config,
	}
	slog.Info("Rasterizer logic initialized.", "imagesBucket", config.ImagesBucket)
	return f, nil
}

// Process renders a document's pages. A document that already reached
// imageExtracted is verified against storage rather than trusted: only when
// every recorded image is actually present does the call short-circuit. On
// any failure the document keeps its current status so the caller can simply
// retry.
func (f *RasterizerService) Process(ctx context.Context, req models.RasterizeRequest) (*models.RasterizeResponse, error) {
	if req.DocumentID == "" {
		return nil, fmt.Errorf("%w: documentId is required", apperr.ErrValidation)
	}
	logCtx := slog.With("documentId", req.DocumentID)

	doc, err := f.documents.Get(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if req.UserID != "" && doc.UserID != req.UserID {
		return nil, fmt.Errorf("%w: document %q", apperr.ErrNotFound, req.DocumentID)
	}

	if doc.Status.AtLeast(models.StatusImageExtracted) {
		missing, actual, err := f.reconcile(ctx, doc)
		if err != nil {
			return nil, err
		}
		if len(missing) == 0 {
			logCtx.Info("Pages already rendered. Skipping.", "pageCount", doc.PageCount)
			return &models.RasterizeResponse{
				Images:           doc.ImageExtracted,
				TotalCount:       doc.PageCount,
				AlreadyProcessed: true,
			}, nil
		}
		logCtx.Warn("Recorded images missing from storage. Re-rendering.",
			"expected", doc.ImageExtracted, "actual", actual, "missing", missing)
	}

	bucket, object, err := gcp.ParseBlobURL(doc.Source)
	if err != nil {
		return nil, err
	}

	tempDir, err := os.MkdirTemp("", "rasterizer-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, "source.pdf")
	data, err := f.blobs.Download(ctx, bucket, object)
	if err != nil {
		logCtx.Error("Failed to download source PDF", "error", err)
		return nil, err
	}
	if err := os.WriteFile(sourcePath, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF: %w", err)
	}

	optimizedPath := filepath.Join(tempDir, "optimized.pdf")
	if err := optimizePDF(sourcePath, optimizedPath); err != nil {
		logCtx.Error("Failed to validate/optimize PDF", "error", err)
		return nil, fmt.Errorf("failed to validate/optimize PDF: %w", err)
	}
	pageCount, err := api.PageCountFile(optimizedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}

	rendered, err := f.rasterizer.Render(ctx, optimizedPath, tempDir)
	if err != nil {
		logCtx.Error("Failed to render pages", "error", err)
		return nil, err
	}

	logCtx.Info("Starting concurrent upload of page images.", "pageCount", len(rendered))
	imageURLs := make([]string, len(rendered))
	var mu sync.Mutex
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for i, localPath := range rendered {
		pageNumber := i + 1
		eg.Go(func() error {
			img, err := os.ReadFile(localPath)
			if err != nil {
				return fmt.Errorf("page %d: %w", pageNumber, err)
			}
			url, err := f.blobs.Upload(gctx, f.config.ImagesBucket, pageImageName(doc.ID, pageNumber), img, nil)
			if err != nil {
				return fmt.Errorf("page %d: %w", pageNumber, err)
			}
			mu.Lock()
			imageURLs[pageNumber-1] = url
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logCtx.Error("One or more page images failed to upload", "error", err)
		return nil, err
	}

	if err := f.documents.SetImageExtracted(ctx, doc.ID, imageURLs, pageCount); err != nil {
		return nil, err
	}
	logCtx.Info("All pages rendered and uploaded.", "pageCount", pageCount)
	return &models.RasterizeResponse{Images: imageURLs, TotalCount: pageCount}, nil
}

// reconcile compares the document's recorded images against what storage
// actually holds and returns the difference.
func (f *RasterizerService) reconcile(ctx context.Context, doc *models.Document) (missing, actual []string, err error) {
	blobs, err := f.blobs.List(ctx, f.config.ImagesBucket, doc.ID+"/")
	if err != nil {
		return nil, nil, err
	}
	present := make(map[string]bool, len(blobs))
	for _, b := range blobs {
		present[b.URL] = true
		actual = append(actual, b.URL)
	}
	for _, url := range doc.ImageExtracted {
		if !present[url] {
			missing = append(missing, url)
		}
	}
	if len(doc.ImageExtracted) == 0 {
		missing = append(missing, "no image record")
	}
	return missing, actual, nil
}

func pageImageName(documentID string, page int) string {
	return fmt.Sprintf("%s/%d.jpg", documentID, page)
}

func optimizePDF(inPath, outPath string) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.OptimizeFile(inPath, outPath, cfg)
}
