// Package services implements the pipeline stages behind the worker
// functions. Each service is constructed once per process and driven by a
// Process call per request.
package services

import (
	"context"
	"time"

	"github.com/yqms/instructionflow/internal/gcp"
	"github.com/yqms/instructionflow/internal/models"
	"github.com/yqms/instructionflow/internal/translate"
)

// BlobStore is the storage surface the services consume; *gcp.Storage is the
// production implementation.
type BlobStore interface {
	Upload(ctx context.Context, bucket, name string, data []byte, metadata map[string]string) (string, error)
	Download(ctx context.Context, bucket, name string) ([]byte, error)
	List(ctx context.Context, bucket, prefix string) ([]gcp.BlobInfo, error)
	DeleteByPrefix(ctx context.Context, bucket, prefix string) (gcp.DeleteSummary, error)
	SignedURL(bucket, name, method string, ttl time.Duration) (string, error)
}

// DocumentRepo is the document persistence surface.
type DocumentRepo interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id string) (*models.Document, error)
	FindByUserAndHash(ctx context.Context, userID, hash string) (*models.Document, error)
	ListByUser(ctx context.Context, userID string) ([]models.Document, error)
	UpdateStatus(ctx context.Context, id string, st models.Status) error
	SetImageExtracted(ctx context.Context, id string, imageURLs []string, pageCount int) error
	SetActive(ctx context.Context, userID, docID string) error
	Delete(ctx context.Context, id string) error
	PutPageExtraction(ctx context.Context, pe *models.PageExtraction) error
	PageExtractions(ctx context.Context, documentID string) ([]models.PageExtraction, error)
}

// InstructionRepo is the instruction persistence surface.
type InstructionRepo interface {
	Create(ctx context.Context, instr *models.Instruction) error
	GetByDocument(ctx context.Context, documentID string) (*models.Instruction, error)
	Update(ctx context.Context, instr *models.Instruction) error
	Delete(ctx context.Context, id string) error
}

// ContentRepo is the content and translation persistence surface.
type ContentRepo interface {
	CreateContent(ctx context.Context, text, code string) (*models.Content, error)
	Get(ctx context.Context, id string) (*models.Content, error)
	Translate(ctx context.Context, content *models.Content, target string) (string, error)
	SaveTranslation(ctx context.Context, contentID, code, translated string) error
	Translations(ctx context.Context, contentID string) ([]models.Translation, error)
	Delete(ctx context.Context, contentID string) error
}

// LanguageRepo is the supported-language reference surface.
type LanguageRepo interface {
	Get(ctx context.Context, code string) (*models.Language, error)
	List(ctx context.Context) ([]models.Language, error)
	Sync(ctx context.Context, languages []models.Language) error
}

// GlossaryRepo serves term overrides for batch jobs.
type GlossaryRepo interface {
	Upsert(ctx context.Context, e *models.GlossaryEntry) error
	Lookup(ctx context.Context, sourceLang, targetLang string) ([]models.GlossaryEntry, error)
}

// Extractor is the generative extraction surface; *gcp.ExtractionClient is
// the production implementation.
type Extractor interface {
	ExtractFromImage(ctx context.Context, image []byte, schema map[string]any) (map[string]any, error)
	ExtractText(ctx context.Context, text string, schema map[string]any) (map[string]any, error)
	OCRImage(ctx context.Context, image []byte) (string, error)
}

// TextTranslator is the synchronous translation surface.
type TextTranslator interface {
	TranslateText(ctx context.Context, text, from, to string) (string, error)
	Detect(ctx context.Context, text string) (string, error)
	SupportedLanguages(ctx context.Context) ([]models.Language, error)
}

// BatchTranslator drives asynchronous document translation jobs.
type BatchTranslator interface {
	Submit(ctx context.Context, customerID string, files []translate.File, sourceLang string, targetLangs []string, glossaries map[string]string) (string, error)
	Poll(ctx context.Context, jobID string) error
	Retrieve(ctx context.Context, customerID string, files []string, langs []string) (map[string]map[string]string, error)
}

// Rasterizer renders a PDF's pages as images on local disk.
type Rasterizer interface {
	Render(ctx context.Context, pdfPath, outDir string) ([]string, error)
}
