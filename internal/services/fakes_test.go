package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yqms/instructionflow/internal/apperr"
	"github.com/yqms/instructionflow/internal/gcp"
	"github.com/yqms/instructionflow/internal/models"
	"github.com/yqms/instructionflow/internal/translate"
)

// --- blob store ---

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}}
}

func blobKey(bucket, name string) string { return bucket + "/" + name }

func (f *fakeBlobs) Upload(_ context.Context, bucket, name string, data []byte, _ map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[blobKey(bucket, name)] = data
	return gcp.BlobURL(bucket, name), nil
}

func (f *fakeBlobs) Download(_ context.Context, bucket, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[blobKey(bucket, name)]
	if !ok {
		return nil, fmt.Errorf("%w: gs://%s/%s", apperr.ErrNotFound, bucket, name)
	}
	return data, nil
}

func (f *fakeBlobs) List(_ context.Context, bucket, prefix string) ([]gcp.BlobInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var blobs []gcp.BlobInfo
	for key := range f.objects {
		bkt, name, ok := strings.Cut(key, "/")
		if ok && bkt == bucket && strings.HasPrefix(name, prefix) {
			blobs = append(blobs, gcp.BlobInfo{Name: name, URL: gcp.BlobURL(bucket, name)})
		}
	}
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].Name < blobs[j].Name })
	return blobs, nil
}

func (f *fakeBlobs) DeleteByPrefix(ctx context.Context, bucket, prefix string) (gcp.DeleteSummary, error) {
	blobs, _ := f.List(ctx, bucket, prefix)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range blobs {
		delete(f.objects, blobKey(bucket, b.Name))
	}
	return gcp.DeleteSummary{Deleted: len(blobs)}, nil
}

func (f *fakeBlobs) SignedURL(bucket, name, method string, _ time.Duration) (string, error) {
	return fmt.Sprintf("https://signed.example.com/%s/%s?method=%s", bucket, name, method), nil
}

// --- document repo ---

type fakeDocuments struct {
	docs  map[string]*models.Document
	pages map[string]*models.PageExtraction
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{
		docs:  map[string]*models.Document{},
		pages: map[string]*models.PageExtraction{},
	}
}

func (f *fakeDocuments) Create(_ context.Context, doc *models.Document) error {
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDocuments) Get(_ context.Context, id string) (*models.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: document %q", apperr.ErrNotFound, id)
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeDocuments) FindByUserAndHash(_ context.Context, userID, hash string) (*models.Document, error) {
	for _, doc := range f.docs {
		if doc.UserID == userID && doc.Hash == hash {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: no document for user %q", apperr.ErrNotFound, userID)
}

func (f *fakeDocuments) ListByUser(_ context.Context, userID string) ([]models.Document, error) {
	var out []models.Document
	for _, doc := range f.docs {
		if doc.UserID == userID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *fakeDocuments) UpdateStatus(_ context.Context, id string, st models.Status) error {
	doc, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("%w: document %q", apperr.ErrNotFound, id)
	}
	doc.Status = st
	return nil
}

func (f *fakeDocuments) SetImageExtracted(_ context.Context, id string, imageURLs []string, pageCount int) error {
	doc, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("%w: document %q", apperr.ErrNotFound, id)
	}
	doc.Status = models.StatusImageExtracted
	doc.ImageExtracted = imageURLs
	doc.PageCount = pageCount
	return nil
}

func (f *fakeDocuments) SetActive(_ context.Context, userID, docID string) error {
	if _, ok := f.docs[docID]; !ok {
		return fmt.Errorf("%w: document %q", apperr.ErrNotFound, docID)
	}
	for _, doc := range f.docs {
		if doc.UserID == userID {
			doc.Active = doc.ID == docID
		}
	}
	return nil
}

func (f *fakeDocuments) Delete(_ context.Context, id string) error {
	delete(f.docs, id)
	return nil
}

func (f *fakeDocuments) PutPageExtraction(_ context.Context, pe *models.PageExtraction) error {
	pe.ID = fmt.Sprintf("%s_%d", pe.DocumentID, pe.PageNumber)
	cp := *pe
	f.pages[pe.ID] = &cp
	return nil
}

func (f *fakeDocuments) PageExtractions(_ context.Context, documentID string) ([]models.PageExtraction, error) {
	var out []models.PageExtraction
	for _, pe := range f.pages {
		if pe.DocumentID == documentID {
			out = append(out, *pe)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out, nil
}

// --- instruction repo ---

type fakeInstructions struct {
	byDoc map[string]*models.Instruction
}

func newFakeInstructions() *fakeInstructions {
	return &fakeInstructions{byDoc: map[string]*models.Instruction{}}
}

func (f *fakeInstructions) Create(_ context.Context, instr *models.Instruction) error {
	instr.ID = instr.DocumentID
	f.byDoc[instr.DocumentID] = instr
	return nil
}

func (f *fakeInstructions) GetByDocument(_ context.Context, documentID string) (*models.Instruction, error) {
	instr, ok := f.byDoc[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: instruction for %q", apperr.ErrNotFound, documentID)
	}
	return instr, nil
}

func (f *fakeInstructions) Update(_ context.Context, instr *models.Instruction) error {
	f.byDoc[instr.DocumentID] = instr
	return nil
}

func (f *fakeInstructions) Delete(_ context.Context, id string) error {
	delete(f.byDoc, id)
	return nil
}

// --- content repo ---

type fakeContents struct {
	contents     map[string]*models.Content
	translations map[string]*models.Translation
	nextID       int
}

func newFakeContents() *fakeContents {
	return &fakeContents{
		contents:     map[string]*models.Content{},
		translations: map[string]*models.Translation{},
	}
}

func (f *fakeContents) CreateContent(_ context.Context, text, code string) (*models.Content, error) {
	if code == "" {
		code = "ja"
	}
	for _, c := range f.contents {
		if c.Original == text && c.LanguageCode == code {
			return c, nil
		}
	}
	f.nextID++
	c := &models.Content{
		ID:           fmt.Sprintf("content-%d", f.nextID),
		Original:     text,
		LanguageCode: code,
	}
	f.contents[c.ID] = c
	return c, nil
}

func (f *fakeContents) Get(_ context.Context, id string) (*models.Content, error) {
	c, ok := f.contents[id]
	if !ok {
		return nil, fmt.Errorf("%w: content %q", apperr.ErrNotFound, id)
	}
	return c, nil
}

func (f *fakeContents) Translate(ctx context.Context, content *models.Content, target string) (string, error) {
	if content.LanguageCode == target {
		return content.Original, nil
	}
	id := content.ID + "_" + target
	if tr, ok := f.translations[id]; ok {
		return tr.Translated, nil
	}
	translated := "[" + target + "] " + content.Original
	_ = f.SaveTranslation(ctx, content.ID, target, translated)
	return translated, nil
}

func (f *fakeContents) SaveTranslation(_ context.Context, contentID, code, translated string) error {
	f.translations[contentID+"_"+code] = &models.Translation{
		ContentID:  contentID,
		Code:       code,
		Translated: translated,
	}
	if c, ok := f.contents[contentID]; ok {
		c.Translated = true
	}
	return nil
}

func (f *fakeContents) Translations(_ context.Context, contentID string) ([]models.Translation, error) {
	var out []models.Translation
	for _, tr := range f.translations {
		if tr.ContentID == contentID {
			out = append(out, *tr)
		}
	}
	return out, nil
}

func (f *fakeContents) Delete(_ context.Context, contentID string) error {
	delete(f.contents, contentID)
	for id, tr := range f.translations {
		if tr.ContentID == contentID {
			delete(f.translations, id)
		}
	}
	return nil
}

func (f *fakeContents) mustAdd(text, lang string) *models.Content {
	c, _ := f.CreateContent(context.Background(), text, lang)
	return c
}

// --- language repo ---

type fakeLanguages struct {
	codes map[string]string
}

func newFakeLanguages(codes ...string) *fakeLanguages {
	f := &fakeLanguages{codes: map[string]string{}}
	for _, code := range codes {
		f.codes[code] = code
	}
	return f
}

func (f *fakeLanguages) Get(_ context.Context, code string) (*models.Language, error) {
	name, ok := f.codes[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperr.ErrUnsupportedLanguage, code)
	}
	return &models.Language{Code: code, Name: name}, nil
}

func (f *fakeLanguages) List(_ context.Context) ([]models.Language, error) {
	var out []models.Language
	for code, name := range f.codes {
		out = append(out, models.Language{Code: code, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (f *fakeLanguages) Sync(_ context.Context, languages []models.Language) error {
	for _, lang := range languages {
		f.codes[lang.Code] = lang.Name
	}
	return nil
}

// --- glossary repo ---

type fakeGlossary struct {
	entries []models.GlossaryEntry
}

func (f *fakeGlossary) Upsert(_ context.Context, e *models.GlossaryEntry) error {
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeGlossary) Lookup(_ context.Context, sourceLang, targetLang string) ([]models.GlossaryEntry, error) {
	var out []models.GlossaryEntry
	for _, e := range f.entries {
		if e.SourceLang == sourceLang && e.TargetLang == targetLang {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- extractor ---

type fakeExtractor struct {
	imageResult map[string]any
	textResult  map[string]any
	ocrText     string
	err         error
	imageCalls  int
	textCalls   int
	ocrCalls    int
}

func (f *fakeExtractor) ExtractFromImage(_ context.Context, _ []byte, _ map[string]any) (map[string]any, error) {
	f.imageCalls++
	return f.imageResult, f.err
}

func (f *fakeExtractor) ExtractText(_ context.Context, _ string, _ map[string]any) (map[string]any, error) {
	f.textCalls++
	return f.textResult, f.err
}

func (f *fakeExtractor) OCRImage(_ context.Context, _ []byte) (string, error) {
	f.ocrCalls++
	if f.err != nil {
		return "", f.err
	}
	return f.ocrText, nil
}

// --- text translator ---

type fakeTranslator struct {
	detectLang string
	calls      int
}

func (f *fakeTranslator) TranslateText(_ context.Context, text, _, to string) (string, error) {
	f.calls++
	return "[" + to + "] " + text, nil
}

func (f *fakeTranslator) Detect(_ context.Context, _ string) (string, error) {
	if f.detectLang == "" {
		return "", apperr.ErrLanguageNotDetected
	}
	return f.detectLang, nil
}

func (f *fakeTranslator) SupportedLanguages(_ context.Context) ([]models.Language, error) {
	return []models.Language{{Code: "en", Name: "English"}, {Code: "ja", Name: "Japanese"}}, nil
}

// --- batch translator ---

type fakeBatch struct {
	submitted struct {
		customerID  string
		files       []translate.File
		sourceLang  string
		targetLangs []string
		glossaries  map[string]string
	}
	pollErr error
	// identity "translation": the staged markup comes back per language
	results map[string]map[string]string
}

func (f *fakeBatch) Submit(_ context.Context, customerID string, files []translate.File, sourceLang string, targetLangs []string, glossaries map[string]string) (string, error) {
	f.submitted.customerID = customerID
	f.submitted.files = files
	f.submitted.sourceLang = sourceLang
	f.submitted.targetLangs = targetLangs
	f.submitted.glossaries = glossaries
	return "job-1", nil
}

func (f *fakeBatch) Poll(_ context.Context, _ string) error {
	return f.pollErr
}

func (f *fakeBatch) Retrieve(_ context.Context, _ string, files []string, langs []string) (map[string]map[string]string, error) {
	if f.results != nil {
		return f.results, nil
	}
	out := map[string]map[string]string{}
	for _, file := range files {
		out[file] = map[string]string{}
		for _, lang := range langs {
			for _, sf := range f.submitted.files {
				if sf.Name == file {
					out[file][lang] = sf.Markup
				}
			}
		}
	}
	return out, nil
}

// --- rasterizer ---

type fakeRasterizer struct {
	pages int
	err   error
	calls int
}

func (f *fakeRasterizer) Render(_ context.Context, _, outDir string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for i := 1; i <= f.pages; i++ {
		path := filepath.Join(outDir, fmt.Sprintf("page-%d.jpg", i))
		if err := os.WriteFile(path, []byte(fmt.Sprintf("img-%d", i)), 0o600); err != nil {
			return nil, err
		}
		out = append(out, path)
	}
	return out, nil
}
