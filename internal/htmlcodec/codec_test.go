package htmlcodec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var langKeys = []string{"english", "french", "japanese", "chinese"}

func TestFlattenProducesPathJoinedIDs(t *testing.T) {
	obj := map[string]any{
		"title": map[string]any{
			"text": map[string]any{"english": "Hello"},
		},
	}

	entries, err := Flatten(obj, langKeys)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "title-text-english", entries[0].ID())
	assert.Equal(t, "Hello", entries[0].Text)
}

func TestFlattenSkipsNonLanguageLeaves(t *testing.T) {
	obj := map[string]any{
		"id":    "doc-1",
		"title": map[string]any{"english": "Hello", "createdBy": "alice"},
	}

	entries, err := Flatten(obj, langKeys)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "title-english", entries[0].ID())
}

func TestFlattenIndexesListItems(t *testing.T) {
	obj := map[string]any{
		"notes": []any{
			map[string]any{"english": "wash cold"},
			map[string]any{"english": "do not bleach"},
		},
	}

	entries, err := Flatten(obj, langKeys)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "notes-0-english", entries[0].ID())
	assert.Equal(t, "notes-1-english", entries[1].ID())
}

func TestFlattenSkipsCycles(t *testing.T) {
	inner := map[string]any{"english": "Hello"}
	inner["self"] = inner

	entries, err := Flatten(map[string]any{"title": inner}, langKeys)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "title-english", entries[0].ID())
}

func TestFlattenCollectsSharedSubtreesPerPath(t *testing.T) {
	shared := map[string]any{"english": "wash cold"}
	obj := map[string]any{"care": shared, "label": shared}

	entries, err := Flatten(obj, langKeys)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "care-english", entries[0].ID())
	assert.Equal(t, "label-english", entries[1].ID())
}

func TestToMarkupEscapesContent(t *testing.T) {
	markup := ToMarkup([]Entry{
		{Path: Path{Key("title"), Key("english")}, Text: `a < b & "c"`},
	})
	assert.Contains(t, markup, `<section class="content-block">`)
	assert.Contains(t, markup, `<p id="title-english">`)
	assert.Contains(t, markup, "a &lt; b &amp; &#34;c&#34;")
	assert.False(t, strings.Contains(markup, `a < b`))
}

func TestRoundTrip(t *testing.T) {
	obj := map[string]any{
		"title": map[string]any{
			"text": map[string]any{"english": "Hello"},
		},
		"notes": []any{
			map[string]any{"english": "wash cold"},
		},
	}

	entries, err := Flatten(obj, langKeys)
	require.NoError(t, err)

	markup := ToMarkup(entries)

	// The translator returns one document per target language; simulate an
	// identity translation into French.
	got, err := Reconstruct(
		[]TranslatedDoc{{Lang: "french", HTML: markup}},
		langKeys, entries,
	)
	require.NoError(t, err)

	want := map[string]any{
		"title": map[string]any{
			"text": map[string]any{"french": "Hello"},
		},
		"notes": []any{
			map[string]any{"french": "wash cold"},
		},
	}
	assert.Equal(t, want, got)
}

func TestReconstructMergesMultipleLanguages(t *testing.T) {
	entries := []Entry{{Path: Path{Key("title"), Key("english")}, Text: "Hello"}}

	frHTML := `<html><body><section class="content-block"><p id="title-english">Bonjour</p></section></body></html>`
	jaHTML := `<html><body><section class="content-block"><p id="title-english">こんにちは</p></section></body></html>`

	got, err := Reconstruct([]TranslatedDoc{
		{Lang: "french", HTML: frHTML},
		{Lang: "japanese", HTML: jaHTML},
	}, langKeys, entries)
	require.NoError(t, err)

	title := got["title"].(map[string]any)
	assert.Equal(t, "Bonjour", title["french"])
	assert.Equal(t, "こんにちは", title["japanese"])
}

func TestReconstructSkipsMissingElements(t *testing.T) {
	entries := []Entry{
		{Path: Path{Key("title"), Key("english")}, Text: "Hello"},
		{Path: Path{Key("subtitle"), Key("english")}, Text: "World"},
	}
	html := `<html><body><section class="content-block"><p id="title-english">Bonjour</p></section></body></html>`

	got, err := Reconstruct([]TranslatedDoc{{Lang: "french", HTML: html}}, langKeys, entries)
	require.NoError(t, err)
	assert.Contains(t, got, "title")
	assert.NotContains(t, got, "subtitle")
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"title": map[string]any{"english": "Hello"},
		"count": 1,
	}
	src := map[string]any{
		"title": map[string]any{"french": "Bonjour"},
		"count": 2,
	}

	got := DeepMerge(dst, src)

	title := got["title"].(map[string]any)
	assert.Equal(t, "Hello", title["english"])
	assert.Equal(t, "Bonjour", title["french"])
	assert.Equal(t, 2, got["count"])
}
