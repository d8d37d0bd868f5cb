// Package markup converts model-produced markdown into the HTML subset
// the Telegram Bot API accepts. Telegram rejects messages containing
// any tag outside its whitelist, so block-level markup is flattened to
// text and unknown tags are stripped entirely.
package markup

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
)

// allowedTags is the Bot API HTML whitelist.
var allowedTags = map[string]bool{
	"b": true, "strong": true,
	"i": true, "em": true,
	"u": true, "ins": true,
	"s": true, "strike": true, "del": true,
	"a":    true,
	"code": true, "pre": true,
	"blockquote": true,
}

var (
	tagRe      = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9-]*)[^>]*>`)
	codeOpenRe = regexp.MustCompile(`<code[^>]*>`)
	anchorRe   = regexp.MustCompile(`<a\s+[^>]*href="([^"]*)"[^>]*>`)
	newlinesRe = regexp.MustCompile(`\n{3,}`)
)

// blockReplacer flattens block-level HTML onto plain text with the
// inline tags Telegram understands.
var blockReplacer = strings.NewReplacer(
	"<p>", "", "</p>", "\n\n",
	"<h1>", "<b>", "</h1>", "</b>\n\n",
	"<h2>", "<b>", "</h2>", "</b>\n\n",
	"<h3>", "<b>", "</h3>", "</b>\n\n",
	"<h4>", "<b>", "</h4>", "</b>\n\n",
	"<h5>", "<b>", "</h5>", "</b>\n\n",
	"<h6>", "<b>", "</h6>", "</b>\n\n",
	"<ul>", "", "</ul>", "\n",
	"<ol>", "", "</ol>", "\n",
	"<li>", "• ", "</li>", "\n",
	"<br>", "\n", "<br/>", "\n", "<br />", "\n",
	"<hr>", "\n", "<hr/>", "\n", "<hr />", "\n",
	"<em>", "<i>", "</em>", "</i>",
	"<strong>", "<b>", "</strong>", "</b>",
	"<del>", "<s>", "</del>", "</s>",
)

// Render converts markdown to Telegram-safe HTML. On a conversion
// failure the original text is returned escaped as plain content —
// a formatting problem must never block a reply.
func Render(md string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return Escape(md)
	}

	out := buf.String()
	out = blockReplacer.Replace(out)

	// Normalize fenced code blocks: goldmark emits a language class
	// Telegram does not accept on <code>.
	out = codeOpenRe.ReplaceAllString(out, "<code>")

	// Keep only the href attribute on anchors.
	out = anchorRe.ReplaceAllString(out, `<a href="$1">`)

	// Strip everything that is still not on the whitelist.
	out = tagRe.ReplaceAllStringFunc(out, func(tag string) string {
		name := strings.ToLower(tagRe.FindStringSubmatch(tag)[1])
		if allowedTags[name] {
			return tag
		}
		return ""
	})

	out = newlinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// Escape makes raw text safe to embed in a Telegram HTML message.
func Escape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
