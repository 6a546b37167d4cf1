package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yqms/instructionflow/internal/apperr"
	"github.com/yqms/instructionflow/internal/models"
)

const (
	contentsCollection     = "contents"
	translationsCollection = "translations"
)

// Translator is the slice of the translation client the content store needs.
type Translator interface {
	TranslateText(ctx context.Context, text, from, to string) (string, error)
	Detect(ctx context.Context, text string) (string, error)
}

// LanguageChecker validates a target language code.
type LanguageChecker interface {
	Get(ctx context.Context, code string) (*models.Language, error)
}

// contentRecords is the persistence surface behind the content store. It is
// an interface so the memoization contract can be tested without Firestore.
type contentRecords interface {
	GetContent(ctx context.Context, id string) (*models.Content, error)
	FindContent(ctx context.Context, text, lang string) (*models.Content, error)
	PutContent(ctx context.Context, c *models.Content) error
	MarkTranslated(ctx context.Context, contentID string) error
	GetTranslation(ctx context.Context, id string) (*models.Translation, error)
	PutTranslation(ctx context.Context, id string, tr *models.Translation) error
	ListTranslations(ctx context.Context, contentID string) ([]models.Translation, error)
	DeleteContent(ctx context.Context, contentID string) error
}

// ContentStore owns content rows and their memoized translations.
type ContentStore struct {
	records     contentRecords
	translator  Translator
	languages   LanguageChecker
	defaultLang string
}

func NewContentStore(db *firestore.Client, translator Translator, languages LanguageChecker, defaultLang string) *ContentStore {
	return &ContentStore{
		records:     &firestoreContentRecords{db: db},
		translator:  translator,
		languages:   languages,
		defaultLang: defaultLang,
	}
}

// translationID keys the memo row: one document per (content, language) pair.
func translationID(contentID, code string) string {
	return contentID + "_" + code
}

// CreateContent stores text as a content row. When code is empty the source
// language is detected, falling back to the configured default when detection
// yields nothing. An existing (text, language) pair is returned as-is instead
// of duplicated.
func (s *ContentStore) CreateContent(ctx context.Context, text, code string) (*models.Content, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: content text cannot be empty", apperr.ErrValidation)
	}
	if code == "" {
		detected, err := s.translator.Detect(ctx, text)
		switch {
		case err == nil:
			code = detected
		case s.defaultLang != "" && isNotDetected(err):
			code = s.defaultLang
		default:
			return nil, err
		}
	}

	if existing, err := s.records.FindContent(ctx, text, code); err == nil {
		return existing, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	content := &models.Content{
		ID:           uuid.NewString(),
		Original:     text,
		LanguageCode: code,
		CreatedAt:    time.Now(),
	}
	if err := s.records.PutContent(ctx, content); err != nil {
		return nil, err
	}
	return content, nil
}

// Translate returns content rendered in the target language. The first call
// per (content, target) pays for a translator round trip; every later call is
// served from the stored translation. Re-running is safe: the memo row is an
// upsert keyed by the pair.
func (s *ContentStore) Translate(ctx context.Context, content *models.Content, target string) (string, error) {
	if _, err := s.languages.Get(ctx, target); err != nil {
		return "", err
	}
	if content.LanguageCode == target {
		return content.Original, nil
	}

	id := translationID(content.ID, target)
	if cached, err := s.records.GetTranslation(ctx, id); err == nil {
		return cached.Translated, nil
	} else if !isNotFound(err) {
		return "", err
	}

	translated, err := s.translator.TranslateText(ctx, content.Original, content.LanguageCode, target)
	if err != nil {
		return "", err
	}

	if err := s.records.PutTranslation(ctx, id, &models.Translation{
		ContentID:  content.ID,
		Code:       target,
		Translated: translated,
	}); err != nil {
		return "", err
	}
	if err := s.records.MarkTranslated(ctx, content.ID); err != nil {
		return "", err
	}
	return translated, nil
}

// SaveTranslation upserts a translated rendering produced outside the
// synchronous path, such as a batch job, and flips the translated flag.
func (s *ContentStore) SaveTranslation(ctx context.Context, contentID, code, translated string) error {
	err := s.records.PutTranslation(ctx, translationID(contentID, code), &models.Translation{
		ContentID:  contentID,
		Code:       code,
		Translated: translated,
	})
	if err != nil {
		return err
	}
	return s.records.MarkTranslated(ctx, contentID)
}

// Get returns one content row by id.
func (s *ContentStore) Get(ctx context.Context, id string) (*models.Content, error) {
	return s.records.GetContent(ctx, id)
}

// FindByText locates a content row by its original text, any language.
func (s *ContentStore) FindByText(ctx context.Context, text string) (*models.Content, error) {
	return s.records.FindContent(ctx, text, "")
}

// Translations lists the stored renderings of one content row.
func (s *ContentStore) Translations(ctx context.Context, contentID string) ([]models.Translation, error) {
	return s.records.ListTranslations(ctx, contentID)
}

// Delete removes a content row and all of its translations.
func (s *ContentStore) Delete(ctx context.Context, contentID string) error {
	return s.records.DeleteContent(ctx, contentID)
}

func isNotFound(err error) bool {
	return err != nil && (status.Code(err) == codes.NotFound || errors.Is(err, apperr.ErrNotFound))
}

func isNotDetected(err error) bool {
	return errors.Is(err, apperr.ErrLanguageNotDetected)
}

// --- Firestore implementation ---

type firestoreContentRecords struct {
	db *firestore.Client
}

func (r *firestoreContentRecords) GetContent(ctx context.Context, id string) (*models.Content, error) {
	doc, err := r.db.Collection(contentsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: content %q", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read content %q: %w", id, err)
	}
	var content models.Content
	if err := doc.DataTo(&content); err != nil {
		return nil, fmt.Errorf("failed to decode content %q: %w", id, err)
	}
	content.ID = doc.Ref.ID
	return &content, nil
}

func (r *firestoreContentRecords) FindContent(ctx context.Context, text, lang string) (*models.Content, error) {
	q := r.db.Collection(contentsCollection).Where("original", "==", text)
	if lang != "" {
		q = q.Where("languageCode", "==", lang)
	}
	it := q.Limit(1).Documents(ctx)
	defer it.Stop()

	doc, err := it.Next()
	if err == iterator.Done {
		return nil, fmt.Errorf("%w: content with text %q", apperr.ErrNotFound, text)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query contents: %w", err)
	}
	var content models.Content
	if err := doc.DataTo(&content); err != nil {
		return nil, fmt.Errorf("failed to decode content %q: %w", doc.Ref.ID, err)
	}
	content.ID = doc.Ref.ID
	return &content, nil
}

func (r *firestoreContentRecords) PutContent(ctx context.Context, c *models.Content) error {
	if _, err := r.db.Collection(contentsCollection).Doc(c.ID).Set(ctx, c); err != nil {
		return fmt.Errorf("failed to write content %q: %w", c.ID, err)
	}
	return nil
}

func (r *firestoreContentRecords) MarkTranslated(ctx context.Context, contentID string) error {
	_, err := r.db.Collection(contentsCollection).Doc(contentID).Update(ctx, []firestore.Update{
		{Path: "translated", Value: true},
	})
	if err != nil {
		return fmt.Errorf("failed to flag content %q translated: %w", contentID, err)
	}
	return nil
}

func (r *firestoreContentRecords) GetTranslation(ctx context.Context, id string) (*models.Translation, error) {
	doc, err := r.db.Collection(translationsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: translation %q", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read translation %q: %w", id, err)
	}
	var tr models.Translation
	if err := doc.DataTo(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode translation %q: %w", id, err)
	}
	return &tr, nil
}

func (r *firestoreContentRecords) PutTranslation(ctx context.Context, id string, tr *models.Translation) error {
	if _, err := r.db.Collection(translationsCollection).Doc(id).Set(ctx, tr); err != nil {
		return fmt.Errorf("failed to write translation %q: %w", id, err)
	}
	return nil
}

func (r *firestoreContentRecords) ListTranslations(ctx context.Context, contentID string) ([]models.Translation, error) {
	it := r.db.Collection(translationsCollection).Where("contentId", "==", contentID).Documents(ctx)
	defer it.Stop()

	var translations []models.Translation
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list translations of %q: %w", contentID, err)
		}
		var tr models.Translation
		if err := doc.DataTo(&tr); err != nil {
			return nil, fmt.Errorf("failed to decode translation %q: %w", doc.Ref.ID, err)
		}
		translations = append(translations, tr)
	}
	return translations, nil
}

func (r *firestoreContentRecords) DeleteContent(ctx context.Context, contentID string) error {
	translations, err := r.ListTranslations(ctx, contentID)
	if err != nil {
		return err
	}
	for _, tr := range translations {
		if _, err := r.db.Collection(translationsCollection).Doc(translationID(tr.ContentID, tr.Code)).Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete translation of %q: %w", contentID, err)
		}
	}
	if _, err := r.db.Collection(contentsCollection).Doc(contentID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete content %q: %w", contentID, err)
	}
	return nil
}
