package compose

import (
	"strings"

	"golang.org/x/net/html"
)

// ExtractBody returns the inner content of every <body> element in doc,
// concatenated in order of appearance. A body without a closing tag runs to
// the end of doc. When doc has no <body> at all it is returned unchanged.
//
// Tags are recognized with the HTML tokenizer, so body tags written inside
// comments, scripts or other raw text never start or end a body.
func ExtractBody(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))

	var b strings.Builder
	offset, start := 0, -1
	found := false
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		n := len(z.Raw())
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if start < 0 && isBodyTag(z) {
				found = true
				start = offset + n
			}
		case html.EndTagToken:
			if start >= 0 && isBodyTag(z) {
				b.WriteString(doc[start:offset])
				start = -1
			}
		}
		offset += n
	}

	if !found {
		return doc
	}
	if start >= 0 {
		b.WriteString(doc[start:])
	}
	return b.String()
}

func isBodyTag(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	return string(name) == "body"
}
