// Package store holds the Firestore-backed repositories for the pipeline's
// collections.
package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yqms/instructionflow/internal/apperr"
	"github.com/yqms/instructionflow/internal/models"
)

const languagesCollection = "languages"

// LanguageStore is the reference collection of supported languages.
type LanguageStore struct {
	db *firestore.Client
}

func NewLanguageStore(db *firestore.Client) *LanguageStore {
	return &LanguageStore{db: db}
}

// Get returns the language for code, or ErrUnsupportedLanguage.
func (s *LanguageStore) Get(ctx context.Context, code string) (*models.Language, error) {
	doc, err := s.db.Collection(languagesCollection).Doc(code).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: %q", apperr.ErrUnsupportedLanguage, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read language %q: %w", code, err)
	}
	var lang models.Language
	if err := doc.DataTo(&lang); err != nil {
		return nil, fmt.Errorf("failed to decode language %q: %w", code, err)
	}
	return &lang, nil
}

// List returns every supported language.
func (s *LanguageStore) List(ctx context.Context) ([]models.Language, error) {
	it := s.db.Collection(languagesCollection).Documents(ctx)
	defer it.Stop()

	var languages []models.Language
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list languages: %w", err)
		}
		var lang models.Language
		if err := doc.DataTo(&lang); err != nil {
			return nil, fmt.Errorf("failed to decode language %q: %w", doc.Ref.ID, err)
		}
		languages = append(languages, lang)
	}
	return languages, nil
}

// Sync replaces the collection contents with the translator's current list.
// Languages are keyed by code, so a re-sync is an upsert.
func (s *LanguageStore) Sync(ctx context.Context, languages []models.Language) error {
	bw := s.db.BulkWriter(ctx)
	for _, lang := range languages {
		if _, err := bw.Set(s.db.Collection(languagesCollection).Doc(lang.Code), lang); err != nil {
			return fmt.Errorf("failed to queue language %q: %w", lang.Code, err)
		}
	}
	bw.End()
	return nil
}
