package store

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/yqms/instructionflow/internal/models"
)

const glossaryCollection = "glossary"

// GlossaryStore holds forced term overrides fed to batch translation jobs.
type GlossaryStore struct {
	db *firestore.Client
}

func NewGlossaryStore(db *firestore.Client) *GlossaryStore {
	return &GlossaryStore{db: db}
}

// Upsert stores an entry keyed by its content pair, so the same override can
// be re-registered without duplicating.
func (s *GlossaryStore) Upsert(ctx context.Context, e *models.GlossaryEntry) error {
	e.ID = e.SourceContentID + "_" + e.TargetContentID
	if _, err := s.db.Collection(glossaryCollection).Doc(e.ID).Set(ctx, e); err != nil {
		return fmt.Errorf("failed to write glossary entry %q: %w", e.ID, err)
	}
	return nil
}

// Lookup returns the overrides registered for a language pair.
func (s *GlossaryStore) Lookup(ctx context.Context, sourceLang, targetLang string) ([]models.GlossaryEntry, error) {
	it := s.db.Collection(glossaryCollection).
		Where("sourceLang", "==", sourceLang).
		Where("targetLang", "==", targetLang).
		Documents(ctx)
	defer it.Stop()

	var entries []models.GlossaryEntry
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query glossary %s->%s: %w", sourceLang, targetLang, err)
		}
		var e models.GlossaryEntry
		if err := doc.DataTo(&e); err != nil {
			return nil, fmt.Errorf("failed to decode glossary entry %q: %w", doc.Ref.ID, err)
		}
		e.ID = doc.Ref.ID
		entries = append(entries, e)
	}
	return entries, nil
}

// AsTSV renders entries in the tab-separated form the batch translator
// accepts for glossaries. Always TSV, whatever the source file format.
func AsTSV(entries []models.GlossaryEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.SourceText)
		b.WriteByte('\t')
		b.WriteString(e.TargetText)
		b.WriteByte('\n')
	}
	return b.String()
}
