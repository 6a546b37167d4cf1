package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/yqms/instructionflow/internal/apperr"
)

// --- Extraction model prompts ---

const extractorSystemPrompt = "You are a document field extraction engine for manufacturing production instructions. You read a document page and return ONLY a JSON object that conforms exactly to the JSON schema provided by the user. Preserve the original language of the document; never translate values."

const extractorUserPromptTemplate = `Extract the fields described by the following JSON schema from the provided page.

Rules:
1. Return a single JSON object conforming to the schema. No preamble, no markdown fences.
2. field_name is the label printed on the page; annotation_value is the value next to it.
3. Use null for any field that is not present on the page.
4. Keep all text in the page's original language.

JSON schema:
%s`

const ocrSystemPrompt = "You are an OCR engine. You transcribe all visible text from a document page image, top to bottom, preserving the original language. If the page is mostly graphical, describe its content in the page's language."

const ocrUserPrompt = "Transcribe every piece of text on this page. Return plain text only."

// ExtractionClient holds the pre-configured generative models used by the
// pipeline: a JSON-forced field extractor and a plain-text OCR model.
type ExtractionClient struct {
	extractorModel *genai.GenerativeModel
	ocrModel       *genai.GenerativeModel
	baseClient     *genai.Client
}

// NewExtractionClient creates a client holding both models.
func NewExtractionClient(ctx context.Context, projectID, region, modelName string) (*ExtractionClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewExtractionClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	extractorModel := baseClient.GenerativeModel(modelName)
	extractorModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(extractorSystemPrompt)},
	}
	extractorModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	ocrModel := baseClient.GenerativeModel(modelName)
	ocrModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ocrSystemPrompt)},
	}
	ocrModel.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0),
	}

	return &ExtractionClient{
		extractorModel: extractorModel,
		ocrModel:       ocrModel,
		baseClient:     baseClient,
	}, nil
}

func (c *ExtractionClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// ExtractFromImage runs the field extractor against a page image, constrained
// by the given JSON schema, and returns the parsed object.
func (c *ExtractionClient) ExtractFromImage(ctx context.Context, image []byte, schema map[string]any) (map[string]any, error) {
	prompt, err := renderExtractorPrompt(schema)
	if err != nil {
		return nil, err
	}
	return c.generateObject(ctx, genai.ImageData("jpeg", image), prompt)
}

// ExtractText runs the field extractor against already-recovered page text.
func (c *ExtractionClient) ExtractText(ctx context.Context, text string, schema map[string]any) (map[string]any, error) {
	prompt, err := renderExtractorPrompt(schema)
	if err != nil {
		return nil, err
	}
	return c.generateObject(ctx, genai.Text("Page content:\n"+text), prompt)
}

// OCRImage transcribes the text on a page image.
func (c *ExtractionClient) OCRImage(ctx context.Context, image []byte) (string, error) {
	resp, err := c.ocrModel.GenerateContent(ctx, genai.ImageData("jpeg", image), genai.Text(ocrUserPrompt))
	if err != nil {
		return "", fmt.Errorf("%w: ocr call failed: %v", apperr.ErrUpstreamUnavailable, err)
	}
	return extractResponseText(resp), nil
}

func renderExtractorPrompt(schema map[string]any) (genai.Text, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("failed to marshal extraction schema: %w", err)
	}
	return genai.Text(fmt.Sprintf(extractorUserPromptTemplate, schemaJSON)), nil
}

func (c *ExtractionClient) generateObject(ctx context.Context, part genai.Part, prompt genai.Text) (map[string]any, error) {
	resp, err := c.extractorModel.GenerateContent(ctx, part, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: extraction call failed: %v", apperr.ErrUpstreamUnavailable, err)
	}

	raw := extractResponseText(resp)
	if raw == "" {
		return nil, fmt.Errorf("%w: model returned an empty response", apperr.ErrUpstreamRejected)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("%w: model returned invalid JSON: %v", apperr.ErrUpstreamRejected, err)
	}
	return result, nil
}

// extractResponseText robustly gets the raw text content from the model
// response, stripping markdown fences the model sometimes adds anyway.
func extractResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	content := strings.TrimSpace(b.String())
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
