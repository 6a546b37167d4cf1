package models

// These structs define the JSON payloads exchanged between callers and the
// worker functions.

// UploadRequest is the input for the document-uploader function.
type UploadRequest struct {
	UserID   string `json:"userId"`
	Type     string `json:"type"`
	FileName string `json:"fileName"`
	Data     []byte `json:"data"`
}

// UploadResponse is the output of the document-uploader function. Conflict
// responses carry the pre-existing document instead of an error body.
type UploadResponse struct {
	Message  string    `json:"message"`
	Document *Document `json:"document"`
	Existing bool      `json:"existing,omitempty"`
}

// RasterizeRequest is the input for the page-rasterizer function.
type RasterizeRequest struct {
	UserID     string `json:"userId"`
	DocumentID string `json:"documentId"`
}

// RasterizeResponse is the output of the page-rasterizer function.
type RasterizeResponse struct {
	Images           []string `json:"images"`
	TotalCount       int      `json:"totalCount"`
	AlreadyProcessed bool     `json:"alreadyProcessed,omitempty"`
}

// ExtractContentRequest is the input for the content-extractor function.
type ExtractContentRequest struct {
	DocumentID string `json:"documentId"`
}

// ExtractContentResponse is the output of the content-extractor function.
type ExtractContentResponse struct {
	Pages    []PageExtraction `json:"pages"`
	Repaired []int            `json:"repaired,omitempty"`
}

// ExtractFieldsRequest is the input for the field-extractor function.
type ExtractFieldsRequest struct {
	UserID     string `json:"userId"`
	DocumentID string `json:"documentId"`
	PageNumber int    `json:"pageNumber"`
}

// ExtractFieldsResponse is the output of the field-extractor function.
type ExtractFieldsResponse struct {
	InstructionID    string       `json:"instructionId"`
	DetectedLanguage string       `json:"detectedLanguage,omitempty"`
	AlreadyExtracted bool         `json:"alreadyExtracted,omitempty"`
	Data             *Instruction `json:"data"`
}

// TranslateInstructionRequest is the input for the instruction-translator
// function's bulk path. Instructions are keyed by their document, so the
// request addresses the document directly.
type TranslateInstructionRequest struct {
	UserID          string   `json:"userId"`
	DocumentID      string   `json:"documentId"`
	TargetLanguages []string `json:"targetLanguages"`
}

// TranslateInstructionResponse is the output of the bulk translation path.
type TranslateInstructionResponse struct {
	JobID          string `json:"jobId"`
	FilesProcessed int    `json:"filesProcessed"`
}

// TranslateObjectRequest is the input for the generic bulk path: an arbitrary
// multilingual object whose string leaves sit under language keys.
type TranslateObjectRequest struct {
	UserID          string         `json:"userId"`
	Object          map[string]any `json:"object"`
	SourceLanguage  string         `json:"sourceLanguage,omitempty"`
	TargetLanguages []string       `json:"targetLanguages"`
}

// GlossaryUpsertRequest registers a forced term override for one language
// pair.
type GlossaryUpsertRequest struct {
	SourceLang string `json:"sourceLang"`
	TargetLang string `json:"targetLang"`
	SourceText string `json:"sourceText"`
	TargetText string `json:"targetText"`
}

// TranslateTextRequest is the input for the static text translation path.
type TranslateTextRequest struct {
	Text       string `json:"text"`
	ToLanguage string `json:"toLanguage"`
}

// TranslateTextResponse is the output of the static text translation path.
type TranslateTextResponse struct {
	Original   string `json:"original"`
	Translated string `json:"translated"`
	Language   string `json:"language"`
	Source     string `json:"source"`
}
