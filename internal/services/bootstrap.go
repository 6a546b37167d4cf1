package services

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/yqms/instructionflow/internal/gcp"
	"github.com/yqms/instructionflow/internal/store"
	"github.com/yqms/instructionflow/internal/translate"
)

// The production constructors assemble each service from environment
// configuration, one per worker process.

func productionClients(ctx context.Context) (*firestore.Client, *gcp.Storage, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	db, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	blobs, err := gcp.NewStorage(ctx)
	if err != nil {
		return nil, nil, err
	}
	return db, blobs, nil
}

func productionTranslator() *translate.Client {
	return translate.NewClient(
		gcp.GetEnv("TRANSLATOR_ENDPOINT", ""),
		gcp.GetEnv("TRANSLATOR_API_KEY", ""),
		gcp.GetEnv("TRANSLATOR_REGION", ""),
	)
}

func productionExtractor(ctx context.Context) (*gcp.ExtractionClient, error) {
	return gcp.NewExtractionClient(ctx,
		gcp.GetEnv("PROJECT_ID", ""),
		gcp.GetEnv("VERTEX_REGION", "us-central1"),
		gcp.GetEnv("VERTEX_MODEL", ""),
	)
}

func NewProductionUploader(ctx context.Context) (*UploaderService, error) {
	db, blobs, err := productionClients(ctx)
	if err != nil {
		return nil, err
	}
	return NewUploader(ctx, store.NewDocumentStore(db), store.NewInstructionStore(db), blobs)
}

func NewProductionRasterizer(ctx context.Context) (*RasterizerService, error) {
	db, blobs, err := productionClients(ctx)
	if err != nil {
		return nil, err
	}
	return NewRasterizerService(ctx, store.NewDocumentStore(db), blobs, NewPopplerRasterizer())
}

func NewProductionContentExtractor(ctx context.Context) (*ContentExtractService, error) {
	db, blobs, err := productionClients(ctx)
	if err != nil {
		return nil, err
	}
	extractor, err := productionExtractor(ctx)
	if err != nil {
		return nil, err
	}
	return NewContentExtractService(ctx, store.NewDocumentStore(db), blobs, extractor, productionTranslator())
}

func NewProductionFieldExtractor(ctx context.Context) (*FieldExtractService, error) {
	db, blobs, err := productionClients(ctx)
	if err != nil {
		return nil, err
	}
	extractor, err := productionExtractor(ctx)
	if err != nil {
		return nil, err
	}
	translator := productionTranslator()
	languages := store.NewLanguageStore(db)
	contents := store.NewContentStore(db, translator, languages, gcp.GetEnv("DEFAULT_LANGUAGE", "en"))
	return NewFieldExtractService(ctx,
		store.NewDocumentStore(db), store.NewInstructionStore(db), contents,
		blobs, extractor, translator)
}

func NewProductionInstructionService(ctx context.Context) (*InstructionService, error) {
	db, blobs, err := productionClients(ctx)
	if err != nil {
		return nil, err
	}
	translator := productionTranslator()
	languages := store.NewLanguageStore(db)
	contents := store.NewContentStore(db, translator, languages, gcp.GetEnv("DEFAULT_LANGUAGE", "en"))
	batch := translate.NewBatchClient(blobs, translate.BatchConfig{
		Endpoint:     gcp.GetEnv("BATCH_TRANSLATOR_ENDPOINT", ""),
		APIKey:       gcp.GetEnv("TRANSLATOR_API_KEY", ""),
		SourceBucket: gcp.GetEnv("STAGING_BUCKET", ""),
		TargetBucket: gcp.GetEnv("TRANSLATED_BUCKET", ""),
	})
	return NewInstructionService(ctx,
		store.NewDocumentStore(db), store.NewInstructionStore(db), contents,
		languages, store.NewGlossaryStore(db), translator, batch)
}

func NewProductionManager(ctx context.Context) (*ManagerService, error) {
	db, blobs, err := productionClients(ctx)
	if err != nil {
		return nil, err
	}
	translator := productionTranslator()
	languages := store.NewLanguageStore(db)
	contents := store.NewContentStore(db, translator, languages, gcp.GetEnv("DEFAULT_LANGUAGE", "en"))
	return NewManagerService(ctx, store.NewDocumentStore(db), store.NewInstructionStore(db), contents, blobs)
}
