package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yqms/instructionflow/internal/apperr"
	"github.com/yqms/instructionflow/internal/gcp"
	"github.com/yqms/instructionflow/internal/models"
)

type UploaderConfig struct {
	ProjectID     string
	UploadsBucket string
}

// UploaderService owns the created->uploaded transition: store the PDF bytes,
// create the master document and its placeholder instruction.
type UploaderService struct {
	blobs        BlobStore
	documents    DocumentRepo
	instructions InstructionRepo
	config       UploaderConfig
}

// GCSEvent is the finalize notification shape for bucket-triggered uploads.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

func NewUploader(ctx context.Context, db DocumentRepo, instructions InstructionRepo, blobs BlobStore) (*UploaderService, error) {
	config := UploaderConfig{
		ProjectID:     gcp.GetEnv("PROJECT_ID", ""),
		UploadsBucket: gcp.GetEnv("UPLOADS_BUCKET", ""),
	}
	if config.UploadsBucket == "" {
		return nil, fmt.Errorf("UPLOADS_BUCKET environment variable must be set")
	}

	f := &UploaderService{
		blobs:        blobs,
		documents:    db,
		instructions: instructions,
		config:       config,
	}
	slog.Info("Uploader logic initialized.", "uploadsBucket", config.UploadsBucket)
	return f, nil
}

// Process stores one uploaded PDF. The same bytes from the same user map to
// the same document: a duplicate returns the existing record with ErrConflict
// so the handler can answer 409 with a useful body.
func (f *UploaderService) Process(ctx context.Context, req models.UploadRequest) (*models.UploadResponse, error) {
	if req.UserID == "" || len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: userId and data are required", apperr.ErrValidation)
	}

	sum := sha256.Sum256(req.Data)
	fileHash := hex.EncodeToString(sum[:])
	logCtx := slog.With("userId", req.UserID, "fileHash", fileHash)

	existing, err := f.documents.FindByUserAndHash(ctx, req.UserID, fileHash)
	if err == nil {
		logCtx.Info("Duplicate upload detected.", "existingDocId", existing.ID)
		return &models.UploadResponse{
			Message:  "document already exists",
			Document: existing,
			Existing: true,
		}, &apperr.ConflictError{ExistingID: existing.ID}
	}
	if !isNotFound(err) {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return nil, err
	}

	docID := uuid.NewString()
	objectName := fmt.Sprintf("%s/%s/source.pdf", req.UserID, docID)
	sourceURL, err := f.blobs.Upload(ctx, f.config.UploadsBucket, objectName, req.Data, map[string]string{
		"originalFilename": req.FileName,
	})
	if err != nil {
		logCtx.Error("Failed to store uploaded PDF", "error", err)
		return nil, err
	}

	doc := &models.Document{
		ID:        docID,
		UserID:    req.UserID,
		Type:      req.Type,
		Status:    models.StatusUploaded,
		Source:    sourceURL,
		Hash:      fileHash,
		CreatedAt: time.Now(),
	}
	if err := f.documents.Create(ctx, doc); err != nil {
		logCtx.Error("Failed to create master document", "error", err)
		return nil, err
	}

	instr := models.NewProductionInstruction(docID)
	if err := f.instructions.Create(ctx, instr); err != nil {
		logCtx.Error("Failed to create placeholder instruction", "error", err)
		return nil, err
	}

	logCtx.Info("Document stored.", "documentId", docID)
	return &models.UploadResponse{Message: "document created", Document: doc}, nil
}

// ProcessEvent handles a bucket-triggered upload. The object path carries the
// owner as its first segment.
func (f *UploaderService) ProcessEvent(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new GCS object.")

	parts := strings.SplitN(e.Name, "/", 2)
	if len(parts) < 2 {
		logCtx.Warn("Object path has no user segment. Skipping.")
		return nil
	}

	data, err := f.blobs.Download(ctx, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to download source PDF", "error", err)
		return err
	}

	_, err = f.Process(ctx, models.UploadRequest{
		UserID:   parts[0],
		FileName: parts[1],
		Data:     data,
	})
	if isConflict(err) {
		// Re-delivered event for bytes we already hold.
		return nil
	}
	return err
}
