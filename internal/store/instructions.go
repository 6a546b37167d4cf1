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

const instructionsCollection = "instructions"

// InstructionStore owns the one-per-document instruction records.
type InstructionStore struct {
	db *firestore.Client
}

func NewInstructionStore(db *firestore.Client) *InstructionStore {
	return &InstructionStore{db: db}
}

// Create stores the instruction keyed by its document, enforcing the 1:1
// relationship.
func (s *InstructionStore) Create(ctx context.Context, instr *models.Instruction) error {
	instr.ID = instr.DocumentID
	if _, err := s.db.Collection(instructionsCollection).Doc(instr.ID).Set(ctx, instr); err != nil {
		return fmt.Errorf("failed to write instruction for %q: %w", instr.DocumentID, err)
	}
	return nil
}

// GetByDocument returns the instruction attached to a document.
func (s *InstructionStore) GetByDocument(ctx context.Context, documentID string) (*models.Instruction, error) {
	snap, err := s.db.Collection(instructionsCollection).Doc(documentID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: instruction for document %q", apperr.ErrNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read instruction for %q: %w", documentID, err)
	}
	var instr models.Instruction
	if err := snap.DataTo(&instr); err != nil {
		return nil, fmt.Errorf("failed to decode instruction %q: %w", snap.Ref.ID, err)
	}
	instr.ID = snap.Ref.ID
	return &instr, nil
}

// Update overwrites the stored graph.
func (s *InstructionStore) Update(ctx context.Context, instr *models.Instruction) error {
	if instr.ID == "" {
		instr.ID = instr.DocumentID
	}
	if _, err := s.db.Collection(instructionsCollection).Doc(instr.ID).Set(ctx, instr); err != nil {
		return fmt.Errorf("failed to update instruction %q: %w", instr.ID, err)
	}
	return nil
}

// ListByDetectedLanguage returns instructions whose source language matches.
func (s *InstructionStore) ListByDetectedLanguage(ctx context.Context, lang string) ([]models.Instruction, error) {
	it := s.db.Collection(instructionsCollection).Where("detectedLanguage", "==", lang).Documents(ctx)
	defer it.Stop()

	var out []models.Instruction
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list instructions: %w", err)
		}
		var instr models.Instruction
		if err := snap.DataTo(&instr); err != nil {
			return nil, fmt.Errorf("failed to decode instruction %q: %w", snap.Ref.ID, err)
		}
		instr.ID = snap.Ref.ID
		out = append(out, instr)
	}
	return out, nil
}

// Delete removes the instruction record. Content cleanup is the caller's
// job, since content rows can outlive one instruction.
func (s *InstructionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Collection(instructionsCollection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete instruction %q: %w", id, err)
	}
	return nil
}
