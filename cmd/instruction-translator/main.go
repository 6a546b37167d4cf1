package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/yqms/instructionflow/internal/apperr"
	"github.com/yqms/instructionflow/internal/models"
	"github.com/yqms/instructionflow/internal/services"
)

var (
	instructionInstance *services.InstructionService
	managerInstance     *services.ManagerService
	once                sync.Once
	initErr             error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("TranslateInstruction", route)
}

// main is required by the Go Functions Framework.
func main() {}

func route(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		ctx := context.Background()
		instructionInstance, initErr = services.NewProductionInstructionService(ctx)
		if initErr == nil {
			managerInstance, initErr = services.NewProductionManager(ctx)
		}
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "failed to initialize service", http.StatusInternalServerError)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/translate":
		translateInstruction(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/translate/text":
		translateText(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/translate/object":
		translateObject(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/detect":
		detect(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/languages":
		listLanguages(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/languages/sync":
		syncLanguages(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/render":
		render(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/glossaries":
		upsertGlossary(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/glossaries":
		listGlossaries(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/documents":
		listDocuments(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/documents/active":
		setActive(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/documents/page-image":
		pageImage(w, r)
	case r.Method == http.MethodDelete && r.URL.Path == "/documents":
		deleteDocuments(w, r)
	default:
		http.NotFound(w, r)
	}
}

func translateInstruction(w http.ResponseWriter, r *http.Request) {
	var req models.TranslateInstructionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "could not parse JSON", http.StatusBadRequest)
		return
	}
	res, err := instructionInstance.TranslateInstruction(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func translateText(w http.ResponseWriter, r *http.Request) {
	var req models.TranslateTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "could not parse JSON", http.StatusBadRequest)
		return
	}
	res, err := instructionInstance.TranslateText(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func translateObject(w http.ResponseWriter, r *http.Request) {
	var req models.TranslateObjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "could not parse JSON", http.StatusBadRequest)
		return
	}
	if len(req.Object) == 0 || len(req.TargetLanguages) == 0 {
		http.Error(w, "object and targetLanguages are required", http.StatusBadRequest)
		return
	}
	merged, err := instructionInstance.TranslateObject(r.Context(),
		req.UserID, req.Object, req.SourceLanguage, req.TargetLanguages)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, merged)
}

func upsertGlossary(w http.ResponseWriter, r *http.Request) {
	var req models.GlossaryUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "could not parse JSON", http.StatusBadRequest)
		return
	}
	entry, err := instructionInstance.UpsertGlossary(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func listGlossaries(w http.ResponseWriter, r *http.Request) {
	entries, err := instructionInstance.Glossaries(r.Context(),
		r.URL.Query().Get("sourceLang"), r.URL.Query().Get("targetLang"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func detect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "could not parse JSON", http.StatusBadRequest)
		return
	}
	lang, err := instructionInstance.DetectLanguage(r.Context(), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"language": lang})
}

func listLanguages(w http.ResponseWriter, r *http.Request) {
	languages, err := instructionInstance.Languages(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, languages)
}

func syncLanguages(w http.ResponseWriter, r *http.Request) {
	languages, err := instructionInstance.SyncLanguages(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, languages)
}

func render(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("documentId")
	lang := r.URL.Query().Get("lang")
	if documentID == "" || lang == "" {
		http.Error(w, "documentId and lang are required", http.StatusBadRequest)
		return
	}
	instr, err := instructionInstance.GetInstruction(r.Context(), documentID)
	if err != nil {
		writeError(w, err)
		return
	}
	projection, err := instructionInstance.Render(r.Context(), instr, lang)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projection)
}

func listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := managerInstance.List(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func setActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string `json:"userId"`
		DocumentID string `json:"documentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "could not parse JSON", http.StatusBadRequest)
		return
	}
	if err := managerInstance.SetActive(r.Context(), req.UserID, req.DocumentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "active document updated"})
}

func pageImage(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	image, err := managerInstance.GetPageImageBase64(r.Context(),
		r.URL.Query().Get("userId"), r.URL.Query().Get("documentId"), page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"image": image})
}

func deleteDocuments(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	documentID := r.URL.Query().Get("documentId")
	if documentID != "" {
		if err := managerInstance.Delete(r.Context(), userID, documentID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "document deleted"})
		return
	}
	deleted, err := managerInstance.DeleteAll(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
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
