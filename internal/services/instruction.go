package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yqms/instructionflow/internal/apperr"
	"github.com/yqms/instructionflow/internal/htmlcodec"
	"github.com/yqms/instructionflow/internal/models"
	"github.com/yqms/instructionflow/internal/store"
	"github.com/yqms/instructionflow/internal/translate"
)

// InstructionService serves the extracted graph: language projections,
// synchronous text translation and the bulk batch translation flow.
type InstructionService struct {
	documents    DocumentRepo
	instructions InstructionRepo
	contents     ContentRepo
	languages    LanguageRepo
	glossary     GlossaryRepo
	translator   TextTranslator
	batch        BatchTranslator
}

func NewInstructionService(ctx context.Context, documents DocumentRepo, instructions InstructionRepo, contents ContentRepo, languages LanguageRepo, glossary GlossaryRepo, translator TextTranslator, batch BatchTranslator) (*InstructionService, error) {
	f := &InstructionService{
		documents:    documents,
		instructions: instructions,
		contents:     contents,
		languages:    languages,
		glossary:     glossary,
		translator:   translator,
		batch:        batch,
	}
	slog.Info("Instruction logic initialized.")
	return f, nil
}

// GetInstruction returns the graph attached to a document.
func (f *InstructionService) GetInstruction(ctx context.Context, documentID string) (*models.Instruction, error) {
	return f.instructions.GetByDocument(ctx, documentID)
}

// --- projection ---

// Render projects the instruction graph into one language. Values without a
// stored translation fall back to their original text; nothing is translated
// or mutated on this path.
func (f *InstructionService) Render(ctx context.Context, instr *models.Instruction, lang string) (map[string]any, error) {
	if _, err := f.languages.Get(ctx, lang); err != nil {
		return nil, err
	}
	rendered, err := f.renderNode(ctx, instr.Root, lang)
	if err != nil {
		return nil, err
	}
	m, ok := rendered.(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return m, nil
}

func (f *InstructionService) renderNode(ctx context.Context, node *models.Node, lang string) (any, error) {
	if node == nil {
		return nil, nil
	}
	switch node.Kind {
	case models.KindAnnotation:
		return f.renderAnnotation(ctx, node.Annotation, lang)
	case models.KindAnnotationList:
		items := make([]any, 0, len(node.Items))
		for _, item := range node.Items {
			rendered, err := f.renderAnnotation(ctx, item, lang)
			if err != nil {
				return nil, err
			}
			items = append(items, rendered)
		}
		return items, nil
	case models.KindObject:
		out := make(map[string]any, len(node.Fields))
		for _, name := range node.FieldOrder() {
			child, ok := node.Fields[name]
			if !ok {
				continue
			}
			rendered, err := f.renderNode(ctx, child, lang)
			if err != nil {
				return nil, err
			}
			out[name] = rendered
		}
		return out, nil
	}
	return nil, nil
}

func (f *InstructionService) renderAnnotation(ctx context.Context, a *models.Annotation, lang string) (map[string]any, error) {
	if a == nil {
		return map[string]any{}, nil
	}
	fieldName, err := f.renderPrompt(ctx, a.FieldName, lang)
	if err != nil {
		return nil, err
	}
	value, err := f.renderPrompt(ctx, a.Value, lang)
	if err != nil {
		return nil, err
	}
	return map[string]any{"fieldName": fieldName, "value": value}, nil
}

func (f *InstructionService) renderPrompt(ctx context.Context, p models.Prompt, lang string) (string, error) {
	if p.ContentID == "" {
		return "", nil
	}
	content, err := f.contents.Get(ctx, p.ContentID)
	if err != nil {
		return "", err
	}
	if content.LanguageCode == lang {
		return content.Original, nil
	}
	translations, err := f.contents.Translations(ctx, p.ContentID)
	if err != nil {
		return "", err
	}
	for _, tr := range translations {
		if tr.Code == lang {
			return tr.Translated, nil
		}
	}
	return content.Original, nil
}

// --- bulk translation ---

// TranslateInstruction translates every extracted value of one instruction
// into the requested target languages through the batch document flow, and
// stores the results as translation rows. Cached pairs make a re-run cheap:
// the batch job carries the same texts, and writing the results back is an
// upsert.
func (f *InstructionService) TranslateInstruction(ctx context.Context, req models.TranslateInstructionRequest) (*models.TranslateInstructionResponse, error) {
	if req.DocumentID == "" || len(req.TargetLanguages) == 0 {
		return nil, fmt.Errorf("%w: documentId and targetLanguages are required", apperr.ErrValidation)
	}
	logCtx := slog.With("documentId", req.DocumentID, "userId", req.UserID)

	for _, lang := range req.TargetLanguages {
		if _, err := f.languages.Get(ctx, lang); err != nil {
			return nil, err
		}
	}

	instr, err := f.instructions.GetByDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	src := instr.DetectedLanguage
	if src == "" {
		return nil, fmt.Errorf("%w: instruction %q has no detected language", apperr.ErrLanguageNotDetected, instr.ID)
	}

	obj, prompts, err := f.buildSourceObject(ctx, instr, src)
	if err != nil {
		return nil, err
	}

	langKeys, err := f.languageKeys(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := htmlcodec.Flatten(obj, langKeys)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		logCtx.Info("Nothing to translate.")
		return &models.TranslateInstructionResponse{FilesProcessed: 0}, nil
	}

	glossaries := map[string]string{}
	for _, lang := range req.TargetLanguages {
		overrides, err := f.glossary.Lookup(ctx, src, lang)
		if err != nil {
			return nil, err
		}
		if len(overrides) > 0 {
			glossaries[lang] = store.AsTSV(overrides)
		}
	}

	markup := htmlcodec.ToMarkup(entries)
	jobID, err := f.batch.Submit(ctx, req.UserID,
		[]translate.File{{Name: instr.ID, Markup: markup}},
		src, req.TargetLanguages, glossaries)
	if err != nil {
		return nil, err
	}
	logCtx = logCtx.With("jobId", jobID)
	logCtx.Info("Batch job submitted.")

	if err := f.batch.Poll(ctx, jobID); err != nil {
		return nil, err
	}

	results, err := f.batch.Retrieve(ctx, req.UserID, []string{instr.ID}, req.TargetLanguages)
	if err != nil {
		return nil, err
	}

	var docs []htmlcodec.TranslatedDoc
	for lang, html := range results[instr.ID] {
		docs = append(docs, htmlcodec.TranslatedDoc{Lang: lang, HTML: html})
	}
	translated, err := htmlcodec.Reconstruct(docs, langKeys, entries)
	if err != nil {
		return nil, err
	}

	saved := 0
	for _, p := range prompts {
		for _, lang := range req.TargetLanguages {
			text, ok := lookupNested(translated, append(p.path, lang))
			if !ok {
				continue
			}
			if err := f.contents.SaveTranslation(ctx, p.contentID, lang, text); err != nil {
				return nil, err
			}
			saved++
		}
	}

	logCtx.Info("Batch translation stored.", "translationsSaved", saved)
	return &models.TranslateInstructionResponse{JobID: jobID, FilesProcessed: len(docs)}, nil
}

// TranslateObject runs an arbitrary multilingual object through the batch
// flow and merges the translated renderings back into it.
func (f *InstructionService) TranslateObject(ctx context.Context, userID string, obj map[string]any, sourceLang string, targetLangs []string) (map[string]any, error) {
	for _, lang := range targetLangs {
		if _, err := f.languages.Get(ctx, lang); err != nil {
			return nil, err
		}
	}

	langKeys, err := f.languageKeys(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := htmlcodec.Flatten(obj, langKeys)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return obj, nil
	}
	if sourceLang == "" {
		detected, err := f.translator.Detect(ctx, entries[0].Text)
		if err != nil {
			return nil, err
		}
		sourceLang = detected
	}

	const fileName = "projection"
	markup := htmlcodec.ToMarkup(entries)
	jobID, err := f.batch.Submit(ctx, userID,
		[]translate.File{{Name: fileName, Markup: markup}},
		sourceLang, targetLangs, nil)
	if err != nil {
		return nil, err
	}
	if err := f.batch.Poll(ctx, jobID); err != nil {
		return nil, err
	}
	results, err := f.batch.Retrieve(ctx, userID, []string{fileName}, targetLangs)
	if err != nil {
		return nil, err
	}

	var docs []htmlcodec.TranslatedDoc
	for lang, html := range results[fileName] {
		docs = append(docs, htmlcodec.TranslatedDoc{Lang: lang, HTML: html})
	}
	translated, err := htmlcodec.Reconstruct(docs, langKeys, entries)
	if err != nil {
		return nil, err
	}
	return htmlcodec.DeepMerge(obj, translated), nil
}

// --- synchronous paths ---

// TranslateText translates one string through the memoized content store.
func (f *InstructionService) TranslateText(ctx context.Context, req models.TranslateTextRequest) (*models.TranslateTextResponse, error) {
	if req.Text == "" || req.ToLanguage == "" {
		return nil, fmt.Errorf("%w: text and toLanguage are required", apperr.ErrValidation)
	}
	content, err := f.contents.CreateContent(ctx, req.Text, "")
	if err != nil {
		return nil, err
	}
	translated, err := f.contents.Translate(ctx, content, req.ToLanguage)
	if err != nil {
		return nil, err
	}
	return &models.TranslateTextResponse{
		Original:   req.Text,
		Translated: translated,
		Language:   req.ToLanguage,
		Source:     content.LanguageCode,
	}, nil
}

// DetectLanguage is a passthrough to the translator's detection endpoint.
func (f *InstructionService) DetectLanguage(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("%w: text is required", apperr.ErrValidation)
	}
	return f.translator.Detect(ctx, text)
}

// UpsertGlossary registers a forced term override for one language pair. The
// term texts are stored as content rows so the pair survives content cleanup
// and the same override re-registers onto the same entry.
func (f *InstructionService) UpsertGlossary(ctx context.Context, req models.GlossaryUpsertRequest) (*models.GlossaryEntry, error) {
	if req.SourceText == "" || req.TargetText == "" {
		return nil, fmt.Errorf("%w: sourceText and targetText are required", apperr.ErrValidation)
	}
	for _, lang := range []string{req.SourceLang, req.TargetLang} {
		if _, err := f.languages.Get(ctx, lang); err != nil {
			return nil, err
		}
	}

	source, err := f.contents.CreateContent(ctx, req.SourceText, req.SourceLang)
	if err != nil {
		return nil, err
	}
	target, err := f.contents.CreateContent(ctx, req.TargetText, req.TargetLang)
	if err != nil {
		return nil, err
	}

	entry := &models.GlossaryEntry{
		SourceContentID: source.ID,
		TargetContentID: target.ID,
		SourceLang:      req.SourceLang,
		TargetLang:      req.TargetLang,
		SourceText:      req.SourceText,
		TargetText:      req.TargetText,
	}
	if err := f.glossary.Upsert(ctx, entry); err != nil {
		return nil, err
	}
	slog.Info("Glossary entry stored.", "sourceLang", req.SourceLang, "targetLang", req.TargetLang)
	return entry, nil
}

// Glossaries lists the overrides registered for a language pair.
func (f *InstructionService) Glossaries(ctx context.Context, sourceLang, targetLang string) ([]models.GlossaryEntry, error) {
	return f.glossary.Lookup(ctx, sourceLang, targetLang)
}

// Languages lists the supported languages from the reference collection.
func (f *InstructionService) Languages(ctx context.Context) ([]models.Language, error) {
	return f.languages.List(ctx)
}

// SyncLanguages refreshes the reference collection from the translator.
func (f *InstructionService) SyncLanguages(ctx context.Context) ([]models.Language, error) {
	current, err := f.translator.SupportedLanguages(ctx)
	if err != nil {
		return nil, err
	}
	if err := f.languages.Sync(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// --- helpers ---

type promptRef struct {
	path      []string
	contentID string
}

// buildSourceObject projects the graph's source texts into a nested object
// keyed by path, with each leaf stored under the source language key. List
// indices become plain keys, which keeps the generated ids stable without
// array handling on the way back.
func (f *InstructionService) buildSourceObject(ctx context.Context, instr *models.Instruction, src string) (map[string]any, []promptRef, error) {
	obj := map[string]any{}
	var prompts []promptRef

	err := instr.Root.WalkAnnotations(func(path []string, a *models.Annotation) error {
		if a == nil {
			return nil
		}
		for key, p := range map[string]models.Prompt{"fieldName": a.FieldName, "value": a.Value} {
			if p.ContentID == "" {
				continue
			}
			content, err := f.contents.Get(ctx, p.ContentID)
			if err != nil {
				return err
			}
			leafPath := append(append([]string{}, path...), key)
			setNested(obj, append(leafPath, src), content.Original)
			prompts = append(prompts, promptRef{path: leafPath, contentID: p.ContentID})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return obj, prompts, nil
}

func (f *InstructionService) languageKeys(ctx context.Context) ([]string, error) {
	languages, err := f.languages.List(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(languages))
	for _, lang := range languages {
		keys = append(keys, lang.Code)
	}
	return keys, nil
}

func setNested(obj map[string]any, path []string, value string) {
	m := obj
	for _, key := range path[:len(path)-1] {
		child, ok := m[key].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[key] = child
		}
		m = child
	}
	m[path[len(path)-1]] = value
}

func lookupNested(obj map[string]any, path []string) (string, bool) {
	var cur any = obj
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		cur = m[key]
	}
	s, ok := cur.(string)
	return s, ok && s != ""
}
