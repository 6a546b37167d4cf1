package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yqms/instructionflow/internal/apperr"
	"github.com/yqms/instructionflow/internal/gcp"
	"github.com/yqms/instructionflow/internal/models"
)

type ManagerConfig struct {
	UploadsBucket string
	ImagesBucket  string
}

// ManagerService covers document administration: listing, the active flag,
// page image access and deletion with its full cascade.
type ManagerService struct {
	blobs        BlobStore
	documents    DocumentRepo
	instructions InstructionRepo
	contents     ContentRepo
	config       ManagerConfig
}

func NewManagerService(ctx context.Context, documents DocumentRepo, instructions InstructionRepo, contents ContentRepo, blobs BlobStore) (*ManagerService, error) {
	config := ManagerConfig{
		UploadsBucket: gcp.GetEnv("UPLOADS_BUCKET", ""),
		ImagesBucket:  gcp.GetEnv("IMAGES_BUCKET", ""),
	}
	if config.UploadsBucket == "" || config.ImagesBucket == "" {
		return nil, fmt.Errorf("UPLOADS_BUCKET and IMAGES_BUCKET environment variables must be set")
	}

	f := &ManagerService{
		blobs:        blobs,
		documents:    documents,
		instructions: instructions,
		contents:     contents,
		config:       config,
	}
	slog.Info("Document manager logic initialized.")
	return f, nil
}

// List returns a user's documents.
func (f *ManagerService) List(ctx context.Context, userID string) ([]models.Document, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", apperr.ErrValidation)
	}
	return f.documents.ListByUser(ctx, userID)
}

// SetActive marks one of the user's documents as the active one.
func (f *ManagerService) SetActive(ctx context.Context, userID, documentID string) error {
	if userID == "" || documentID == "" {
		return fmt.Errorf("%w: userId and documentId are required", apperr.ErrValidation)
	}
	return f.documents.SetActive(ctx, userID, documentID)
}

// GetPageImageBase64 returns one rendered page as a base64 string, the form
// browser clients embed directly.
func (f *ManagerService) GetPageImageBase64(ctx context.Context, userID, documentID string, page int) (string, error) {
	doc, err := f.documents.Get(ctx, documentID)
	if err != nil {
		return "", err
	}
	if userID != "" && doc.UserID != userID {
		return "", fmt.Errorf("%w: document %q", apperr.ErrNotFound, documentID)
	}
	if page < 1 || page > doc.PageCount {
		return "", fmt.Errorf("%w: page %d of document %q", apperr.ErrNotFound, page, documentID)
	}
	image, err := f.blobs.Download(ctx, f.config.ImagesBucket, pageImageName(documentID, page))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(image), nil
}

// Delete removes one document with its blobs, instruction, contents and
// translations. Individual content failures are collected rather than
// aborting the cascade; the document record goes last so a partial failure
// stays retryable.
func (f *ManagerService) Delete(ctx context.Context, userID, documentID string) error {
	doc, err := f.documents.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if userID != "" && doc.UserID != userID {
		return fmt.Errorf("%w: document %q", apperr.ErrNotFound, documentID)
	}
	logCtx := slog.With("documentId", documentID, "userId", doc.UserID)

	instr, err := f.instructions.GetByDocument(ctx, documentID)
	if err != nil && !isNotFound(err) {
		return err
	}
	if instr != nil {
		if err := f.deleteInstructionContents(ctx, logCtx, instr); err != nil {
			return err
		}
		if err := f.instructions.Delete(ctx, instr.ID); err != nil {
			return err
		}
	}

	for bucket, prefix := range map[string]string{
		f.config.UploadsBucket: doc.UserID + "/" + documentID + "/",
		f.config.ImagesBucket:  documentID + "/",
	} {
		summary, err := f.blobs.DeleteByPrefix(ctx, bucket, prefix)
		if err != nil {
			return err
		}
		if len(summary.Failed) > 0 {
			return fmt.Errorf("failed to delete %d blobs under gs://%s/%s", len(summary.Failed), bucket, prefix)
		}
	}

	if err := f.documents.Delete(ctx, documentID); err != nil {
		return err
	}
	logCtx.Info("Document deleted.")
	return nil
}

// DeleteAll removes every document a user owns.
func (f *ManagerService) DeleteAll(ctx context.Context, userID string) (int, error) {
	docs, err := f.documents.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, doc := range docs {
		if err := f.Delete(ctx, userID, doc.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (f *ManagerService) deleteInstructionContents(ctx context.Context, logCtx *slog.Logger, instr *models.Instruction) error {
	var contentIDs []string
	if instr.Root != nil {
		_ = instr.Root.WalkAnnotations(func(_ []string, a *models.Annotation) error {
			if a == nil {
				return nil
			}
			for _, id := range []string{a.FieldName.ContentID, a.Value.ContentID} {
				if id != "" {
					contentIDs = append(contentIDs, id)
				}
			}
			return nil
		})
	}

	var (
		mu     sync.Mutex
		failed []string
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(10)
	for _, id := range contentIDs {
		eg.Go(func() error {
			if err := f.contents.Delete(gctx, id); err != nil {
				logCtx.Warn("Failed to delete content row.", "contentId", id, "error", err)
				mu.Lock()
				failed = append(failed, id)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	if len(failed) > 0 {
		return fmt.Errorf("%d content rows could not be removed: %v", len(failed), failed)
	}
	return nil
}
