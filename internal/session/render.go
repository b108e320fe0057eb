// ABOUTME: Markdown rendering for final replies
// ABOUTME: Raw HTML in engine output is not passed through

package session

import (
	"bytes"
	"log/slog"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// renderHTML converts reply markdown to HTML. An empty string is returned if
// rendering fails; the plain content is always sent alongside.
func renderHTML(text string, logger *slog.Logger) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		logger.Debug("markdown render failed", "error", err)
		return ""
	}
	return buf.String()
}
