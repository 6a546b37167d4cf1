package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yqms/instructionflow/internal/apperr"
	"github.com/yqms/instructionflow/internal/gcp"
	"github.com/yqms/instructionflow/internal/models"
)

type ContentExtractConfig struct {
	ImagesBucket string
}

// ContentExtractService owns the imageExtracted->contentExtracted transition:
// recover each page's text through the extraction model. Pages that are
// mostly graphical come back as a description instead of a transcription;
// both are stored the same way.
type ContentExtractService struct {
	blobs      BlobStore
	documents  DocumentRepo
	extractor  Extractor
	translator TextTranslator
	config     ContentExtractConfig
}

func NewContentExtractService(ctx context.Context, documents DocumentRepo, blobs BlobStore, extractor Extractor, translator TextTranslator) (*ContentExtractService, error) {
	config := ContentExtractConfig{
		ImagesBucket: gcp.GetEnv("IMAGES_BUCKET", ""),
	}
	if config.ImagesBucket == "" {
		return nil, fmt.Errorf("IMAGES_BUCKET environment variable must be set")
	}

	f := &ContentExtractService{
		blobs:      blobs,
		documents:  documents,
		extractor:  extractor,
		translator: translator,
		config:     config,
	}
	slog.Info("Content extractor logic initialized.", "imagesBucket", config.ImagesBucket)
	return f, nil
}

// Process extracts the text of every page that does not yet have usable
// content. A re-run after partial failure is a repair pass: pages whose
// stored content is long enough are left alone. The document status only
// advances when every page has usable content.
func (f *ContentExtractService) Process(ctx context.Context, req models.ExtractContentRequest) (*models.ExtractContentResponse, error) {
	if req.DocumentID == "" {
		return nil, fmt.Errorf("%w: documentId is required", apperr.ErrValidation)
	}
	logCtx := slog.With("documentId", req.DocumentID)

	doc, err := f.documents.Get(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if !doc.Status.AtLeast(models.StatusImageExtracted) {
		return nil, fmt.Errorf("%w: document %q has no rendered pages yet (status %s)",
			apperr.ErrValidation, doc.ID, doc.Status)
	}

	existing, err := f.documents.PageExtractions(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	byPage := make(map[int]models.PageExtraction, len(existing))
	for _, pe := range existing {
		byPage[pe.PageNumber] = pe
	}

	var needed []int
	for page := 1; page <= doc.PageCount; page++ {
		if pe, ok := byPage[page]; !ok || pageNeedsRepair(pe) {
			needed = append(needed, page)
		}
	}
	if len(needed) == 0 && doc.Status.AtLeast(models.StatusContentExtracted) {
		logCtx.Info("All pages already extracted. Skipping.")
		return &models.ExtractContentResponse{Pages: existing}, nil
	}

	originLang := detectedOriginLang(existing)
	var repaired []int
	for _, page := range needed {
		image, err := f.blobs.Download(ctx, f.config.ImagesBucket, pageImageName(doc.ID, page))
		if err != nil {
			logCtx.Error("Failed to download page image", "page", page, "error", err)
			return nil, err
		}

		content, err := f.extractor.OCRImage(ctx, image)
		if err != nil {
			logCtx.Error("Failed to extract page content", "page", page, "error", err)
			return nil, err
		}
		if len(content) < models.MinPageContentLength {
			logCtx.Warn("Extracted content below threshold, keeping for repair.",
				"page", page, "length", len(content))
		}

		if originLang == "" && len(content) >= models.MinPageContentLength {
			if lang, err := f.translator.Detect(ctx, content); err == nil {
				originLang = lang
			} else {
				logCtx.Warn("Language detection failed for page content.", "page", page, "error", err)
			}
		}

		pe := models.PageExtraction{
			DocumentID: doc.ID,
			PageNumber: page,
			Content:    content,
			OriginLang: originLang,
			Attempts:   byPage[page].Attempts + 1,
		}
		if err := f.documents.PutPageExtraction(ctx, &pe); err != nil {
			return nil, err
		}
		byPage[page] = pe
		repaired = append(repaired, page)
	}

	pages := make([]models.PageExtraction, 0, doc.PageCount)
	complete := true
	for page := 1; page <= doc.PageCount; page++ {
		pe, ok := byPage[page]
		if !ok || pageNeedsRepair(pe) {
			complete = false
		}
		if ok {
			pages = append(pages, pe)
		}
	}

	if complete && !doc.Status.AtLeast(models.StatusContentExtracted) {
		if err := f.documents.UpdateStatus(ctx, doc.ID, models.StatusContentExtracted); err != nil {
			return nil, err
		}
	}

	logCtx.Info("Content extraction pass finished.",
		"pagesProcessed", len(repaired), "complete", complete)
	return &models.ExtractContentResponse{Pages: pages, Repaired: repaired}, nil
}

// pageNeedsRepair reports whether a page's stored content is still worth
// another extraction. A page that exhausted its attempts is kept best-effort.
func pageNeedsRepair(pe models.PageExtraction) bool {
	return len(pe.Content) < models.MinPageContentLength &&
		pe.Attempts < models.MaxPageRepairAttempts
}

func detectedOriginLang(pages []models.PageExtraction) string {
	for _, pe := range pages {
		if pe.OriginLang != "" {
			return pe.OriginLang
		}
	}
	return ""
}
