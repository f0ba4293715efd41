// Package compose flattens the spine of an EPUB package into a single HTML
// fragment, rewriting image and link references so the result stands alone.
package compose

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuanying/epubinline/internal/epub"
	"github.com/yuanying/epubinline/internal/resolver"
)

// ChapterClass is the class of the element wrapping each chapter.
const ChapterClass = "epub-chapter"

// MissingImageClass is the class of the placeholder that replaces an <img>
// whose source could not be resolved.
const MissingImageClass = "epub-image-missing"

// Assets resolves image references found in chapter markup.
type Assets interface {
	// Lookup returns the data URI registered for src, as referenced from a
	// chapter located in chapterDir.
	Lookup(chapterDir, src string) (string, bool)
	// ResolveUnlisted inlines an archive entry the manifest does not list.
	ResolveUnlisted(ctx context.Context, chapterDir, src string) (string, bool)
}

// Options configures a Compositor.
type Options struct {
	// ResolveUnlisted inlines images that chapters reference but the
	// manifest omits, instead of replacing them with a placeholder.
	ResolveUnlisted bool
	Logger          *slog.Logger
}

// Chapter is the composed markup of one spine item.
type Chapter struct {
	ManifestID    string
	Index         int    // position in the spine
	HTML          string // wrapped chapter body, "" when Missing
	Missing       bool   // manifest item or archive entry absent
	ImagesInlined int
	ImagesMissing int
}

// Compositor rewrites and wraps individual chapters. It is safe for
// concurrent use as long as its Assets are.
type Compositor struct {
	archive *epub.Archive
	pkg     *epub.Package
	assets  Assets
	opts    Options
	logger  *slog.Logger
}

// NewCompositor returns a compositor for the chapters of pkg.
func NewCompositor(archive *epub.Archive, pkg *epub.Package, assets Assets, opts Options) *Compositor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{
		archive: archive,
		pkg:     pkg,
		assets:  assets,
		opts:    opts,
		logger:  logger,
	}
}

// ComposeChapter loads the spine item at index and returns its rewritten,
// wrapped body. Problems with a single chapter never fail the book: an
// unknown idref, a missing entry or unparsable markup yield a Missing
// chapter with empty HTML.
func (c *Compositor) ComposeChapter(ctx context.Context, index int, ref epub.SpineItem) Chapter {
	ch := Chapter{ManifestID: ref.IDRef, Index: index}

	item, ok := c.pkg.Manifest[ref.IDRef]
	if !ok {
		c.logger.WarnContext(ctx, "spine item not in manifest", "idref", ref.IDRef)
		ch.Missing = true
		return ch
	}

	chapterPath, text, err := c.load(item)
	if err != nil {
		c.logger.WarnContext(ctx, "chapter not loaded", "idref", ref.IDRef, "href", item.Href, "error", err)
		ch.Missing = true
		return ch
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(expandEmptyElements(text)))
	if err != nil {
		c.logger.WarnContext(ctx, "chapter not parsed", "path", chapterPath, "error", err)
		ch.Missing = true
		return ch
	}

	chapterDir := path.Dir(chapterPath)
	if chapterDir == "." {
		chapterDir = ""
	}
	c.rewriteImages(ctx, doc, chapterDir, &ch)
	c.rewriteSVGImages(ctx, doc, chapterDir, &ch)
	rewriteLinks(doc)

	body, err := doc.Find("body").Html()
	if err != nil {
		c.logger.WarnContext(ctx, "chapter not rendered", "path", chapterPath, "error", err)
		ch.Missing = true
		return ch
	}

	ch.HTML = wrapChapter(ref.IDRef, index, body)
	return ch
}

// load reads the chapter entry for item, trying the href as written and
// then percent-decoded.
func (c *Compositor) load(item epub.ManifestItem) (string, string, error) {
	p := c.pkg.ItemPath(item)
	tried := []string{p}
	if decoded, err := url.PathUnescape(p); err == nil && decoded != p {
		tried = append(tried, decoded)
	}
	for _, candidate := range tried {
		entry, ok := c.archive.Get(candidate)
		if !ok {
			continue
		}
		text, err := entry.Text()
		if err != nil {
			return candidate, "", err
		}
		return candidate, text, nil
	}
	return p, "", fmt.Errorf("entry %s not found", p)
}

func (c *Compositor) rewriteImages(ctx context.Context, doc *goquery.Document, chapterDir string, ch *Chapter) {
	doc.Find("img[src]").Each(func(i int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		uri, ok, inlineable := c.resolve(ctx, chapterDir, src)
		if !inlineable {
			return
		}
		if ok {
			s.SetAttr("src", uri)
			ch.ImagesInlined++
			return
		}
		ch.ImagesMissing++
		c.logger.WarnContext(ctx, "image not resolved", "chapter", ch.ManifestID, "src", src)
		s.ReplaceWithHtml(missingImage(src))
	})
}

// rewriteSVGImages handles <image xlink:href> inside inline SVG. Unresolved
// references are left alone so the SVG keeps whatever fallback it has.
func (c *Compositor) rewriteSVGImages(ctx context.Context, doc *goquery.Document, chapterDir string, ch *Chapter) {
	doc.Find("svg image").Each(func(i int, s *goquery.Selection) {
		// Attr matches on the local name, so this also finds xlink:href.
		href, exists := s.Attr("href")
		if !exists {
			return
		}
		uri, ok, inlineable := c.resolve(ctx, chapterDir, href)
		if !inlineable {
			return
		}
		if !ok {
			ch.ImagesMissing++
			c.logger.WarnContext(ctx, "svg image not resolved", "chapter", ch.ManifestID, "href", href)
			return
		}
		s.SetAttr("href", uri)
		ch.ImagesInlined++
	})
}

// resolve returns the data URI for src. inlineable is false for references
// that must not be touched at all (external, data: or empty).
func (c *Compositor) resolve(ctx context.Context, chapterDir, src string) (uri string, ok, inlineable bool) {
	if src = strings.TrimSpace(src); !resolver.IsInlineable(src) {
		return "", false, false
	}
	if uri, ok := c.assets.Lookup(chapterDir, src); ok {
		return uri, true, true
	}
	if c.opts.ResolveUnlisted {
		if uri, ok := c.assets.ResolveUnlisted(ctx, chapterDir, src); ok {
			return uri, true, true
		}
	}
	return "", false, true
}

// rewriteLinks collapses intra-book links onto the flattened document.
// Links with a scheme are kept, "file#frag" becomes "#frag", and any other
// relative link is made inert by moving its target to data-epub-href.
func rewriteLinks(doc *goquery.Document) {
	doc.Find("a[href]").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		trimmed := strings.TrimSpace(href)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			return
		}

		u, err := url.Parse(trimmed)
		if err == nil && u.Scheme != "" {
			return
		}
		if _, frag, found := strings.Cut(trimmed, "#"); found && frag != "" {
			s.SetAttr("href", "#"+frag)
			return
		}
		s.RemoveAttr("href")
		s.SetAttr("data-epub-href", href)
	})
}

func missingImage(src string) string {
	name, _, _ := strings.Cut(src, "#")
	name, _, _ = strings.Cut(name, "?")
	name = path.Base(name)
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	return fmt.Sprintf(`<span class="%s" data-src="%s">image not found: %s</span>`,
		MissingImageClass, html.EscapeString(src), html.EscapeString(name))
}

func wrapChapter(id string, index int, body string) string {
	var b strings.Builder
	b.WriteString(`<div class="` + ChapterClass + `" data-chapter-id="`)
	b.WriteString(html.EscapeString(id))
	b.WriteString(`" data-spine-index="` + strconv.Itoa(index) + `">`)
	b.WriteString(body)
	b.WriteString("</div>")
	return b.String()
}
