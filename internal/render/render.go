// Package render turns alert templates and field values into the markdown,
// HTML and CSS shown to viewers.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/good-yellow-bee/alertcast/internal/models"
)

// markdown converts with GFM tables and passes raw HTML through unchanged.
// The output is not sanitized.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Table),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// Document is the rendered form of an alert.
type Document struct {
	Text  string // substituted markdown
	HTML  string
	Style string // substituted CSS
}

// Template substitutes every "$name" token with the field's value, in field
// order, then resolves "$$" to a literal "$".
//
// Overlapping names are not disambiguated: with fields "a" and "ab", "$ab"
// is rewritten by whichever field comes first.
func Template(tmpl string, fields []models.Field) string {
	out := tmpl
	for _, f := range fields {
		out = strings.ReplaceAll(out, "$"+string(f.Name), f.Value.String())
	}
	return strings.ReplaceAll(out, "$$", "$")
}

// Markdown converts src to HTML.
func Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}

// Alert renders both templates of a against its fields.
func Alert(a *models.Alert) (Document, error) {
	text := Template(a.LastText, a.Fields)
	htmlOut, err := Markdown(text)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Text:  text,
		HTML:  htmlOut,
		Style: Template(a.LastStyle, a.Fields),
	}, nil
}
