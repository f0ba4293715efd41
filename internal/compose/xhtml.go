package compose

import (
	"strings"

	"golang.org/x/net/html"
)

// voidElements never have content, so their empty-element form needs no
// closing tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "keygen": true, "link": true,
	"meta": true, "param": true, "source": true, "track": true, "wbr": true,
}

// expandEmptyElements rewrites XHTML empty-element tags of non-void
// elements, such as <title/> or <a id="x"/>, into an explicit start and end
// tag pair. The HTML parser ignores the trailing slash on those elements,
// and for raw text elements like title or script it would otherwise take the
// rest of the chapter as their content.
func expandEmptyElements(markup string) string {
	if !strings.Contains(markup, "/>") {
		return markup
	}

	z := html.NewTokenizer(strings.NewReader(markup))
	var b strings.Builder
	b.Grow(len(markup))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := z.Raw()
		offset += len(raw)
		if tt != html.SelfClosingTagToken {
			b.Write(raw)
			continue
		}

		name, _ := z.TagName()
		if voidElements[string(name)] {
			b.Write(raw)
			continue
		}
		// The tokenizer flags raw text elements even when they are empty.
		z.NextIsNotRawText()

		// Keep the original spelling of the name for SVG and MathML content.
		original := raw[1 : 1+len(name)]
		b.Write(raw[:len(raw)-2])
		b.WriteString("></")
		b.Write(original)
		b.WriteByte('>')
	}
	b.WriteString(markup[offset:])
	return b.String()
}
