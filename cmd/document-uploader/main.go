package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/yqms/instructionflow/internal/apperr"
	"github.com/yqms/instructionflow/internal/models"
	"github.com/yqms/instructionflow/internal/services"
)

var (
	uploaderInstance *services.UploaderService
	once             sync.Once
	initErr          error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// The bucket-finalize trigger and the direct HTTP upload share one
	// service instance.
	functions.CloudEvent("OnDocumentUploaded", onDocumentUploaded)
	functions.HTTP("UploadDocument", uploadDocument)
}

// main is required by the Go Functions Framework.
func main() {}

func initService() error {
	once.Do(func() {
		uploaderInstance, initErr = services.NewProductionUploader(context.Background())
	})
	return initErr
}

func onDocumentUploaded(ctx context.Context, e cloudevents.Event) error {
	if err := initService(); err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	return uploaderInstance.ProcessEvent(ctx, gcsEvent)
}

func uploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := initService(); err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		http.Error(w, "failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := uploaderInstance.Process(r.Context(), req)
	if err != nil {
		// A duplicate upload is answered with the existing document rather
		// than an error body.
		if errors.Is(err, apperr.ErrConflict) && res != nil {
			writeJSON(w, http.StatusConflict, res)
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.HTTPStatus(err), map[string]string{"error": err.Error()})
}
