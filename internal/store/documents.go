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

const (
	documentsCollection       = "documents"
	pageExtractionsCollection = "pageExtractions"
)

// DocumentStore owns document records and their page extraction rows.
type DocumentStore struct {
	db *firestore.Client
}

func NewDocumentStore(db *firestore.Client) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) Create(ctx context.Context, doc *models.Document) error {
	if _, err := s.db.Collection(documentsCollection).Doc(doc.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to write document %q: %w", doc.ID, err)
	}
	return nil
}

func (s *DocumentStore) Get(ctx context.Context, id string) (*models.Document, error) {
	snap, err := s.db.Collection(documentsCollection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: document %q", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document %q: %w", id, err)
	}
	return decodeDocument(snap)
}

// FindByUserAndHash locates the document a user already uploaded with the
// same content hash. ErrNotFound means the upload is new.
func (s *DocumentStore) FindByUserAndHash(ctx context.Context, userID, hash string) (*models.Document, error) {
	it := s.db.Collection(documentsCollection).
		Where("userId", "==", userID).
		Where("hash", "==", hash).
		Limit(1).
		Documents(ctx)
	defer it.Stop()

	snap, err := it.Next()
	if err == iterator.Done {
		return nil, fmt.Errorf("%w: no document for user %q with that hash", apperr.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	return decodeDocument(snap)
}

func (s *DocumentStore) ListByUser(ctx context.Context, userID string) ([]models.Document, error) {
	it := s.db.Collection(documentsCollection).Where("userId", "==", userID).Documents(ctx)
	defer it.Stop()

	var docs []models.Document
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list documents of %q: %w", userID, err)
		}
		doc, err := decodeDocument(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

// UpdateStatus advances the document's pipeline status.
func (s *DocumentStore) UpdateStatus(ctx context.Context, id string, st models.Status) error {
	_, err := s.db.Collection(documentsCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "status", Value: st},
	})
	if err != nil {
		return fmt.Errorf("failed to set document %q status %q: %w", id, st, err)
	}
	return nil
}

// SetImageExtracted records the rendered page image URLs along with the
// status advance, in one write.
func (s *DocumentStore) SetImageExtracted(ctx context.Context, id string, imageURLs []string, pageCount int) error {
	_, err := s.db.Collection(documentsCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "status", Value: models.StatusImageExtracted},
		{Path: "imageExtracted", Value: imageURLs},
		{Path: "pageCount", Value: pageCount},
	})
	if err != nil {
		return fmt.Errorf("failed to record extracted images of %q: %w", id, err)
	}
	return nil
}

// SetActive marks one document active and clears the flag on the user's
// other documents.
func (s *DocumentStore) SetActive(ctx context.Context, userID, docID string) error {
	docs, err := s.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	found := false
	for _, doc := range docs {
		if doc.ID == docID {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: document %q", apperr.ErrNotFound, docID)
	}
	for _, doc := range docs {
		active := doc.ID == docID
		if doc.Active == active {
			continue
		}
		_, err := s.db.Collection(documentsCollection).Doc(doc.ID).Update(ctx, []firestore.Update{
			{Path: "active", Value: active},
		})
		if err != nil {
			return fmt.Errorf("failed to set active flag on %q: %w", doc.ID, err)
		}
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	if err := s.DeletePageExtractions(ctx, id); err != nil {
		return err
	}
	if _, err := s.db.Collection(documentsCollection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete document %q: %w", id, err)
	}
	return nil
}

// --- page extractions ---

func pageExtractionID(documentID string, page int) string {
	return fmt.Sprintf("%s_%d", documentID, page)
}

// PutPageExtraction upserts the recovered text of one page.
func (s *DocumentStore) PutPageExtraction(ctx context.Context, pe *models.PageExtraction) error {
	pe.ID = pageExtractionID(pe.DocumentID, pe.PageNumber)
	if _, err := s.db.Collection(pageExtractionsCollection).Doc(pe.ID).Set(ctx, pe); err != nil {
		return fmt.Errorf("failed to write page extraction %q: %w", pe.ID, err)
	}
	return nil
}

// PageExtractions lists a document's page rows ordered by page number.
func (s *DocumentStore) PageExtractions(ctx context.Context, documentID string) ([]models.PageExtraction, error) {
	it := s.db.Collection(pageExtractionsCollection).
		Where("documentId", "==", documentID).
		OrderBy("pageNumber", firestore.Asc).
		Documents(ctx)
	defer it.Stop()

	var pages []models.PageExtraction
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list page extractions of %q: %w", documentID, err)
		}
		var pe models.PageExtraction
		if err := snap.DataTo(&pe); err != nil {
			return nil, fmt.Errorf("failed to decode page extraction %q: %w", snap.Ref.ID, err)
		}
		pe.ID = snap.Ref.ID
		pages = append(pages, pe)
	}
	return pages, nil
}

func (s *DocumentStore) DeletePageExtractions(ctx context.Context, documentID string) error {
	pages, err := s.PageExtractions(ctx, documentID)
	if err != nil {
		return err
	}
	for _, pe := range pages {
		if _, err := s.db.Collection(pageExtractionsCollection).Doc(pe.ID).Delete(ctx); err != nil {
			return fmt.Errorf("failed to delete page extraction %q: %w", pe.ID, err)
		}
	}
	return nil
}

func decodeDocument(snap *firestore.DocumentSnapshot) (*models.Document, error) {
	var doc models.Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %q: %w", snap.Ref.ID, err)
	}
	doc.ID = snap.Ref.ID
	return &doc, nil
}
