package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yqms/instructionflow/internal/apperr"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", "")
}

func TestTranslateText(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/translate", r.URL.Path)
		assert.Equal(t, "fr", r.URL.Query().Get("to"))
		assert.Equal(t, "en", r.URL.Query().Get("from"))
		assert.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{
			{"translations": []map[string]any{{"text": "Bonjour", "to": "fr"}}},
		})
	}))

	got, err := client.TranslateText(context.Background(), "Hello", "en", "fr")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", got)
}

func TestTranslateTextRejectedStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad subscription", http.StatusUnauthorized)
	}))

	_, err := client.TranslateText(context.Background(), "Hello", "", "fr")
	assert.ErrorIs(t, err, apperr.ErrUpstreamRejected)
}

func TestDetect(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/detect", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{{"language": "ja", "score": 0.98}})
	}))

	got, err := client.Detect(context.Background(), "こんにちは")
	require.NoError(t, err)
	assert.Equal(t, "ja", got)
}

func TestDetectNoLanguage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{})
	}))

	_, err := client.Detect(context.Background(), "???")
	assert.ErrorIs(t, err, apperr.ErrLanguageNotDetected)
}

func TestSupportedLanguagesSorted(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/languages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"translation": map[string]any{
				"ja": map[string]any{"name": "Japanese"},
				"en": map[string]any{"name": "English"},
				"fr": map[string]any{"name": "French"},
			},
		})
	}))

	got, err := client.SupportedLanguages(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "en", got[0].Code)
	assert.Equal(t, "fr", got[1].Code)
	assert.Equal(t, "ja", got[2].Code)
}
