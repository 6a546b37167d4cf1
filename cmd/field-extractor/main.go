package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/yqms/instructionflow/internal/apperr"
	"github.com/yqms/instructionflow/internal/models"
	"github.com/yqms/instructionflow/internal/services"
)

var (
	extractorInstance *services.FieldExtractService
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("ExtractFields", extractFields)
}

// main is required by the Go Functions Framework.
func main() {}

func extractFields(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		extractorInstance, initErr = services.NewProductionFieldExtractor(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.ExtractFieldsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := extractorInstance.Process(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
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
