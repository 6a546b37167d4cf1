package htmlcodec

import (
	"html"
	"strings"
)

// ToMarkup renders flattened entries as the single HTML document the batch
// translator consumes. Each leaf becomes one <p> keyed by its path id.
func ToMarkup(entries []Entry) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"></head><body>")
	b.WriteString(`<section class="content-block">`)
	for _, e := range entries {
		b.WriteString(`<p id="`)
		b.WriteString(html.EscapeString(e.ID()))
		b.WriteString(`">`)
		b.WriteString(html.EscapeString(e.Text))
		b.WriteString("</p>")
	}
	b.WriteString("</section></body></html>")
	return b.String()
}
