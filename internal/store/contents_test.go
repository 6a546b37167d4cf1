package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yqms/instructionflow/internal/apperr"
	"github.com/yqms/instructionflow/internal/models"
)

type memoryRecords struct {
	contents     map[string]*models.Content
	translations map[string]*models.Translation
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{
		contents:     map[string]*models.Content{},
		translations: map[string]*models.Translation{},
	}
}

func (m *memoryRecords) GetContent(_ context.Context, id string) (*models.Content, error) {
	c, ok := m.contents[id]
	if !ok {
		return nil, fmt.Errorf("%w: content %q", apperr.ErrNotFound, id)
	}
	return c, nil
}

func (m *memoryRecords) FindContent(_ context.Context, text, lang string) (*models.Content, error) {
	for _, c := range m.contents {
		if c.Original == text && (lang == "" || c.LanguageCode == lang) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: content with text %q", apperr.ErrNotFound, text)
}

func (m *memoryRecords) PutContent(_ context.Context, c *models.Content) error {
	cp := *c
	m.contents[c.ID] = &cp
	return nil
}

func (m *memoryRecords) MarkTranslated(_ context.Context, contentID string) error {
	c, ok := m.contents[contentID]
	if !ok {
		return fmt.Errorf("%w: content %q", apperr.ErrNotFound, contentID)
	}
	c.Translated = true
	return nil
}

func (m *memoryRecords) GetTranslation(_ context.Context, id string) (*models.Translation, error) {
	tr, ok := m.translations[id]
	if !ok {
		return nil, fmt.Errorf("%w: translation %q", apperr.ErrNotFound, id)
	}
	return tr, nil
}

func (m *memoryRecords) PutTranslation(_ context.Context, id string, tr *models.Translation) error {
	cp := *tr
	m.translations[id] = &cp
	return nil
}

func (m *memoryRecords) ListTranslations(_ context.Context, contentID string) ([]models.Translation, error) {
	var out []models.Translation
	for _, tr := range m.translations {
		if tr.ContentID == contentID {
			out = append(out, *tr)
		}
	}
	return out, nil
}

func (m *memoryRecords) DeleteContent(_ context.Context, contentID string) error {
	delete(m.contents, contentID)
	for id, tr := range m.translations {
		if tr.ContentID == contentID {
			delete(m.translations, id)
		}
	}
	return nil
}

type countingTranslator struct {
	calls      int
	detectLang string
}

func (t *countingTranslator) TranslateText(_ context.Context, text, _, to string) (string, error) {
	t.calls++
	return "[" + to + "] " + text, nil
}

func (t *countingTranslator) Detect(_ context.Context, _ string) (string, error) {
	if t.detectLang == "" {
		return "", apperr.ErrLanguageNotDetected
	}
	return t.detectLang, nil
}

type staticLanguages map[string]string

func (l staticLanguages) Get(_ context.Context, code string) (*models.Language, error) {
	name, ok := l[code]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperr.ErrUnsupportedLanguage, code)
	}
	return &models.Language{Code: code, Name: name}, nil
}

func newTestContentStore(translator *countingTranslator) (*ContentStore, *memoryRecords) {
	records := newMemoryRecords()
	return &ContentStore{
		records:     records,
		translator:  translator,
		languages:   staticLanguages{"en": "English", "fr": "French", "ja": "Japanese"},
		defaultLang: "en",
	}, records
}

func TestTranslateIsMemoized(t *testing.T) {
	translator := &countingTranslator{detectLang: "ja"}
	contents, records := newTestContentStore(translator)

	content, err := contents.CreateContent(context.Background(), "こんにちは", "")
	require.NoError(t, err)
	require.Equal(t, "ja", content.LanguageCode)

	first, err := contents.Translate(context.Background(), content, "fr")
	require.NoError(t, err)
	assert.Equal(t, "[fr] こんにちは", first)
	assert.Equal(t, 1, translator.calls)

	// Repeat calls are served from the stored translation.
	for i := 0; i < 3; i++ {
		again, err := contents.Translate(context.Background(), content, "fr")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, 1, translator.calls)

	assert.True(t, records.contents[content.ID].Translated)
}

func TestTranslateSameLanguageShortCircuits(t *testing.T) {
	translator := &countingTranslator{}
	contents, _ := newTestContentStore(translator)

	content, err := contents.CreateContent(context.Background(), "Hello", "en")
	require.NoError(t, err)

	got, err := contents.Translate(context.Background(), content, "en")
	require.NoError(t, err)
	assert.Equal(t, "Hello", got)
	assert.Zero(t, translator.calls)
}

func TestTranslateUnsupportedLanguageFailsFast(t *testing.T) {
	translator := &countingTranslator{}
	contents, _ := newTestContentStore(translator)

	content, err := contents.CreateContent(context.Background(), "Hello", "en")
	require.NoError(t, err)

	_, err = contents.Translate(context.Background(), content, "xx")
	require.ErrorIs(t, err, apperr.ErrUnsupportedLanguage)
	assert.Zero(t, translator.calls)
}

func TestCreateContentDeduplicates(t *testing.T) {
	contents, records := newTestContentStore(&countingTranslator{})

	a, err := contents.CreateContent(context.Background(), "Hello", "en")
	require.NoError(t, err)
	b, err := contents.CreateContent(context.Background(), "Hello", "en")
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Len(t, records.contents, 1)
}

func TestCreateContentFallsBackToDefaultLanguage(t *testing.T) {
	// Detection yields nothing; the configured default carries the row.
	contents, _ := newTestContentStore(&countingTranslator{detectLang: ""})

	content, err := contents.CreateContent(context.Background(), "???", "")
	require.NoError(t, err)
	assert.Equal(t, "en", content.LanguageCode)
}

func TestCreateContentNoDetectionNoDefault(t *testing.T) {
	records := newMemoryRecords()
	contents := &ContentStore{
		records:    records,
		translator: &countingTranslator{},
		languages:  staticLanguages{"en": "English"},
	}

	_, err := contents.CreateContent(context.Background(), "???", "")
	assert.ErrorIs(t, err, apperr.ErrLanguageNotDetected)
}
