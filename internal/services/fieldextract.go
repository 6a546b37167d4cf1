package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/yqms/instructionflow/internal/apperr"
	"github.com/yqms/instructionflow/internal/gcp"
	"github.com/yqms/instructionflow/internal/models"
	"github.com/yqms/instructionflow/internal/schema"
)

type FieldExtractConfig struct {
	ImagesBucket string
}

// FieldExtractService owns the transition to fieldExtracted: generate the
// schema for the document's annotation graph, run the extraction model,
// validate the output and merge it back into the graph as content rows.
type FieldExtractService struct {
	blobs        BlobStore
	documents    DocumentRepo
	instructions InstructionRepo
	contents     ContentRepo
	extractor    Extractor
	translator   TextTranslator
	config       FieldExtractConfig
}

func NewFieldExtractService(ctx context.Context, documents DocumentRepo, instructions InstructionRepo, contents ContentRepo, blobs BlobStore, extractor Extractor, translator TextTranslator) (*FieldExtractService, error) {
	config := FieldExtractConfig{
		ImagesBucket: gcp.GetEnv("IMAGES_BUCKET", ""),
	}
	if config.ImagesBucket == "" {
		return nil, fmt.Errorf("IMAGES_BUCKET environment variable must be set")
	}

	f := &FieldExtractService{
		blobs:        blobs,
		documents:    documents,
		instructions: instructions,
		contents:     contents,
		extractor:    extractor,
		translator:   translator,
		config:       config,
	}
	slog.Info("Field extractor logic initialized.", "imagesBucket", config.ImagesBucket)
	return f, nil
}

// Process extracts the instruction fields of one document. A document that
// already reached fieldExtracted returns its stored graph untouched. The
// status only advances after the merged graph is persisted, so a failed run
// leaves the document retryable.
func (f *FieldExtractService) Process(ctx context.Context, req models.ExtractFieldsRequest) (*models.ExtractFieldsResponse, error) {
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

	instr, err := f.instructions.GetByDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if doc.Status.AtLeast(models.StatusFieldExtracted) {
		logCtx.Info("Fields already extracted. Skipping.")
		return &models.ExtractFieldsResponse{
			InstructionID:    instr.ID,
			DetectedLanguage: instr.DetectedLanguage,
			AlreadyExtracted: true,
			Data:             instr,
		}, nil
	}
	if !doc.Status.AtLeast(models.StatusImageExtracted) {
		return nil, fmt.Errorf("%w: document %q has no rendered pages yet (status %s)",
			apperr.ErrValidation, doc.ID, doc.Status)
	}

	extractionSchema := schema.Generate(instr)

	page := req.PageNumber
	if page < 1 {
		page = 1
	}

	// A page whose text was already recovered is cheaper to re-read as text
	// than as pixels.
	result, originLang, err := f.runExtraction(ctx, doc, page, extractionSchema)
	if err != nil {
		logCtx.Error("Extraction failed", "page", page, "error", err)
		return nil, err
	}
	if err := schema.Validate(extractionSchema, result); err != nil {
		logCtx.Error("Extraction output failed validation", "error", err)
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstreamRejected, err)
	}

	if originLang == "" {
		originLang = f.detectFromResult(ctx, result)
	}
	if originLang == "" {
		return nil, apperr.ErrLanguageNotDetected
	}

	if err := f.mergeNode(ctx, instr.Root, result, originLang); err != nil {
		return nil, err
	}
	instr.DetectedLanguage = originLang

	if err := f.instructions.Update(ctx, instr); err != nil {
		return nil, err
	}
	if err := f.documents.UpdateStatus(ctx, doc.ID, models.StatusFieldExtracted); err != nil {
		return nil, err
	}

	logCtx.Info("Fields extracted.", "detectedLanguage", originLang)
	return &models.ExtractFieldsResponse{
		InstructionID:    instr.ID,
		DetectedLanguage: originLang,
		Data:             instr,
	}, nil
}

func (f *FieldExtractService) runExtraction(ctx context.Context, doc *models.Document, page int, extractionSchema map[string]any) (map[string]any, string, error) {
	pages, err := f.documents.PageExtractions(ctx, doc.ID)
	if err == nil {
		for _, pe := range pages {
			if pe.PageNumber == page && len(pe.Content) >= models.MinPageContentLength {
				result, err := f.extractor.ExtractText(ctx, pe.Content, extractionSchema)
				return result, pe.OriginLang, err
			}
		}
	}

	image, err := f.blobs.Download(ctx, f.config.ImagesBucket, pageImageName(doc.ID, page))
	if err != nil {
		return nil, "", err
	}
	result, err := f.extractor.ExtractFromImage(ctx, image, extractionSchema)
	return result, "", err
}

// detectFromResult samples extracted values until detection succeeds.
func (f *FieldExtractService) detectFromResult(ctx context.Context, result map[string]any) string {
	var sample []string
	collectStrings(result, &sample, 5)
	for _, text := range sample {
		if lang, err := f.translator.Detect(ctx, text); err == nil {
			return lang
		}
	}
	return ""
}

func collectStrings(v any, out *[]string, limit int) {
	if len(*out) >= limit {
		return
	}
	switch val := v.(type) {
	case string:
		if strings.TrimSpace(val) != "" {
			*out = append(*out, val)
		}
	case map[string]any:
		for _, item := range val {
			collectStrings(item, out, limit)
		}
	case []any:
		for _, item := range val {
			collectStrings(item, out, limit)
		}
	}
}

// mergeNode writes an extraction result into the graph, creating a content
// row for every non-null value. Nulls leave the placeholder prompt untouched.
func (f *FieldExtractService) mergeNode(ctx context.Context, node *models.Node, value any, lang string) error {
	if node == nil || value == nil {
		return nil
	}
	switch node.Kind {
	case models.KindAnnotation:
		m, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		return f.mergeAnnotation(ctx, node.Annotation, m, lang)
	case models.KindAnnotationList:
		items, ok := value.([]any)
		if !ok {
			return nil
		}
		node.Items = node.Items[:0]
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			a := &models.Annotation{
				FieldName: models.Prompt{Type: models.PromptString},
				Value:     models.Prompt{Type: models.PromptString},
			}
			if err := f.mergeAnnotation(ctx, a, m, lang); err != nil {
				return err
			}
			node.Items = append(node.Items, a)
		}
	case models.KindObject:
		m, ok := value.(map[string]any)
		if !ok {
			return nil
		}
		for _, name := range node.FieldOrder() {
			child, ok := node.Fields[name]
			if !ok {
				continue
			}
			if err := f.mergeNode(ctx, child, m[name], lang); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *FieldExtractService) mergeAnnotation(ctx context.Context, a *models.Annotation, m map[string]any, lang string) error {
	if a == nil {
		return nil
	}
	if text := stringify(m["field_name"]); text != "" {
		content, err := f.contents.CreateContent(ctx, text, lang)
		if err != nil {
			return err
		}
		a.FieldName.ContentID = content.ID
	}
	if text := stringify(m["annotation_value"]); text != "" {
		content, err := f.contents.CreateContent(ctx, text, lang)
		if err != nil {
			return err
		}
		a.Value.ContentID = content.ID
	}
	return nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}
