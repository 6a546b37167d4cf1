package htmlcodec

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TranslatedDoc is one translated rendering of the markup, tagged with the
// language the translator produced it in.
type TranslatedDoc struct {
	Lang string
	HTML string
}

// Reconstruct rebuilds a nested multilingual object from translated markup.
// It never parses element ids back into paths; it walks the typed paths of
// the entries the markup was generated from. The terminal language-key
// segment of each path is swapped for the document's language. Elements
// missing from a translated document are skipped with a warning.
func Reconstruct(docs []TranslatedDoc, langKeys []string, entries []Entry) (map[string]any, error) {
	langs := make(map[string]bool, len(langKeys))
	for _, k := range langKeys {
		langs[k] = true
	}

	result := map[string]any{}
	for _, doc := range docs {
		parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc.HTML))
		if err != nil {
			return nil, fmt.Errorf("failed to parse translated document for %q: %w", doc.Lang, err)
		}

		texts := make(map[string]string)
		parsed.Find("section.content-block p[id]").Each(func(_ int, sel *goquery.Selection) {
			id, _ := sel.Attr("id")
			texts[id] = strings.TrimSpace(sel.Text())
		})

		for _, e := range entries {
			text, ok := texts[e.ID()]
			if !ok || text == "" {
				slog.Warn("translated element missing, skipping",
					"id", e.ID(), "lang", doc.Lang)
				continue
			}
			target := retarget(e.Path, doc.Lang, langs)
			assignPath(result, target, text)
		}
	}
	return result, nil
}

// retarget replaces the path's language-key segment with the translated
// document's language. When the leaf sits inside an array under the language
// key, the language segment is not last, so the scan runs from the tail.
func retarget(p Path, lang string, langs map[string]bool) Path {
	out := p.clone()
	for i := len(out) - 1; i >= 0; i-- {
		if !out[i].IsIndex && langs[out[i].Key] {
			out[i] = Key(lang)
			return out
		}
	}
	return append(out, Key(lang))
}

// assignPath writes value at path inside root, creating intermediate maps and
// growing arrays as needed. A leaf of the wrong shape is overwritten.
func assignPath(root map[string]any, path Path, value any) {
	if len(path) == 0 || path[0].IsIndex {
		return
	}
	root[path[0].Key] = assign(root[path[0].Key], path[1:], value)
}

func assign(container any, path Path, value any) any {
	if len(path) == 0 {
		return value
	}
	seg := path[0]
	if seg.IsIndex {
		arr, _ := container.([]any)
		for len(arr) <= seg.Index {
			arr = append(arr, nil)
		}
		arr[seg.Index] = assign(arr[seg.Index], path[1:], value)
		return arr
	}
	m, ok := container.(map[string]any)
	if !ok {
		m = map[string]any{}
	}
	m[seg.Key] = assign(m[seg.Key], path[1:], value)
	return m
}

// DeepMerge merges src into dst: nested objects merge recursively, every
// other value in src overwrites dst. dst is modified and returned.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, sv := range src {
		if sm, ok := sv.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				dst[k] = DeepMerge(dm, sm)
				continue
			}
			dst[k] = DeepMerge(map[string]any{}, sm)
			continue
		}
		dst[k] = sv
	}
	return dst
}
