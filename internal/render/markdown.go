// Package render turns stored conversation turns into the HTML fragments
// the chat page is assembled from.
package render

import (
	"bytes"
	"html"
	"html/template"
	"log"
	"strings"
	"sync"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

// markdownInstance is initialized once and reused: the configuration
// never changes and goldmark.Markdown is safe to share across requests.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(
					highlighting.WithStyle("monokai"),
					highlighting.WithFormatOptions(
						chromahtml.WithClasses(false),
					),
				),
			),
			goldmark.WithRendererOptions(
				// Single newlines in model output are line breaks.
				goldmarkhtml.WithHardWraps(),
			),
		)
	})
	return markdownInstance
}

// AssistantHTML renders an assistant turn's markdown to HTML. On a
// render failure it falls back to escaped plain text so the turn is
// still shown.
func AssistantHTML(content string) template.HTML {
	var buf bytes.Buffer
	if err := getMarkdown().Convert([]byte(content), &buf); err != nil {
		log.Printf("[render] markdown failed, escaping instead: %v", err)
		return UserHTML(content)
	}
	return template.HTML(buf.String())
}

// UserHTML escapes a user turn. User text is never interpreted as
// markup; newlines become explicit breaks.
func UserHTML(content string) template.HTML {
	escaped := html.EscapeString(content)
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>"))
}
