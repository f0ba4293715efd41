package compose

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuanying/epubinline/internal/epub"
	"github.com/yuanying/epubinline/internal/epubtest"
	"github.com/yuanying/epubinline/internal/resolver"
)

type fixture struct {
	archive *epub.Archive
	pkg     *epub.Package
	assets  *resolver.Resolver
}

// newFixture builds a package under OEBPS/ holding images/a.png and the
// given chapters, in spine order. extra files are added to the archive only.
func newFixture(t *testing.T, extra []epubtest.File, chapters ...epubtest.File) *fixture {
	t.Helper()

	items := []epubtest.Item{
		{ID: "img", Href: "images/a.png", MediaType: "image/png"},
	}
	var spine []string
	for i, ch := range chapters {
		id := "ch" + string(rune('1'+i))
		items = append(items, epubtest.Item{ID: id, Href: strings.TrimPrefix(ch.Name, "OEBPS/"), MediaType: "application/xhtml+xml"})
		spine = append(spine, id)
	}

	files := []epubtest.File{
		epubtest.Mimetype(),
		epubtest.Container("OEBPS/content.opf"),
		epubtest.OPF("OEBPS/content.opf", "Fixture", items, spine...),
		{Name: "OEBPS/images/a.png", Body: epubtest.PNG(t, 2, 2)},
	}
	files = append(files, chapters...)
	files = append(files, extra...)

	a, err := epub.OpenArchive(epubtest.Zip(t, files...))
	if err != nil {
		t.Fatalf("OpenArchive() failed: %v", err)
	}
	pkg, err := epub.ParsePackage(a, "OEBPS/content.opf")
	if err != nil {
		t.Fatalf("ParsePackage() failed: %v", err)
	}

	r := resolver.New(a, pkg.BaseDir, resolver.Options{})
	for _, img := range pkg.Images() {
		r.Register(r.ResolveItem(context.Background(), img))
	}
	return &fixture{archive: a, pkg: pkg, assets: r}
}

func (f *fixture) compose(t *testing.T, opts Options, index int) Chapter {
	t.Helper()
	c := NewCompositor(f.archive, f.pkg, f.assets, opts)
	return c.ComposeChapter(context.Background(), index, f.pkg.Spine[index])
}

func parseFragment(t *testing.T, fragment string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	return doc
}

func TestComposeChapter_Wrapper(t *testing.T) {
	f := newFixture(t, nil, epubtest.Chapter("OEBPS/text/ch1.xhtml", "One", "<h1>One</h1><p>text</p>"))

	ch := f.compose(t, Options{}, 0)
	if ch.Missing {
		t.Fatal("chapter reported missing")
	}
	if !strings.HasPrefix(ch.HTML, `<div class="epub-chapter" data-chapter-id="ch1" data-spine-index="0">`) {
		t.Errorf("HTML does not start with the chapter wrapper: %.80q", ch.HTML)
	}
	if strings.Contains(strings.ToLower(ch.HTML), "<body") || strings.Contains(ch.HTML, "<title>") {
		t.Errorf("HTML still contains document structure: %q", ch.HTML)
	}
	if !strings.Contains(ch.HTML, "<h1>One</h1><p>text</p>") {
		t.Errorf("HTML lost chapter content: %q", ch.HTML)
	}
}

func TestComposeChapter_InlinesImages(t *testing.T) {
	f := newFixture(t, nil, epubtest.Chapter("OEBPS/text/ch1.xhtml", "One",
		`<img src="../images/a.png" alt="a"/><img src="images/a.png"/><img src="a.png"/>`))

	ch := f.compose(t, Options{}, 0)
	if ch.ImagesInlined != 3 || ch.ImagesMissing != 0 {
		t.Fatalf("inlined/missing = %d/%d, want 3/0", ch.ImagesInlined, ch.ImagesMissing)
	}

	doc := parseFragment(t, ch.HTML)
	var srcs []string
	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		srcs = append(srcs, src)
	})
	if len(srcs) != 3 {
		t.Fatalf("found %d img elements, want 3", len(srcs))
	}
	for _, src := range srcs {
		if !strings.HasPrefix(src, "data:image/png;base64,") || src != srcs[0] {
			t.Errorf("src = %.40q, want the same PNG data URI", src)
		}
	}
}

func TestComposeChapter_MissingImagePlaceholder(t *testing.T) {
	f := newFixture(t, nil, epubtest.Chapter("OEBPS/text/ch1.xhtml", "One",
		`<p>before</p><img src="../images/gone%20pic.png"/><p>after</p>`))

	ch := f.compose(t, Options{}, 0)
	if ch.Missing {
		t.Fatal("a missing image dropped the chapter")
	}
	if ch.ImagesMissing != 1 {
		t.Errorf("ImagesMissing = %d, want 1", ch.ImagesMissing)
	}

	doc := parseFragment(t, ch.HTML)
	if doc.Find("img").Length() != 0 {
		t.Error("unresolved <img> was not replaced")
	}
	ph := doc.Find("span." + MissingImageClass)
	if ph.Length() != 1 {
		t.Fatalf("found %d placeholders, want 1", ph.Length())
	}
	if got := ph.Text(); got != "image not found: gone pic.png" {
		t.Errorf("placeholder text = %q", got)
	}
	if got, _ := ph.Attr("data-src"); got != "../images/gone%20pic.png" {
		t.Errorf("placeholder data-src = %q", got)
	}
	if doc.Find("p").Length() != 2 {
		t.Error("surrounding content was lost")
	}
}

func TestComposeChapter_LeavesExternalImages(t *testing.T) {
	f := newFixture(t, nil, epubtest.Chapter("OEBPS/text/ch1.xhtml", "One",
		`<img src="https://example.com/a.png"/><img src="data:image/gif;base64,R0lGOD"/>`))

	ch := f.compose(t, Options{}, 0)
	if ch.ImagesInlined != 0 || ch.ImagesMissing != 0 {
		t.Errorf("inlined/missing = %d/%d, want 0/0", ch.ImagesInlined, ch.ImagesMissing)
	}
	if !strings.Contains(ch.HTML, `src="https://example.com/a.png"`) {
		t.Errorf("external image was rewritten: %q", ch.HTML)
	}
}

func TestComposeChapter_SVGImage(t *testing.T) {
	f := newFixture(t, nil, epubtest.Chapter("OEBPS/text/ch1.xhtml", "One",
		`<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10">`+
			`<image xlink:href="../images/a.png" width="10" height="10"/>`+
			`<image xlink:href="../images/gone.png" width="10" height="10"/>`+
			`</svg>`))

	ch := f.compose(t, Options{}, 0)
	if ch.ImagesInlined != 1 || ch.ImagesMissing != 1 {
		t.Errorf("inlined/missing = %d/%d, want 1/1", ch.ImagesInlined, ch.ImagesMissing)
	}
	if !strings.Contains(ch.HTML, `xlink:href="data:image/png;base64,`) {
		t.Errorf("resolved svg image not rewritten: %q", ch.HTML)
	}
	if !strings.Contains(ch.HTML, `xlink:href="../images/gone.png"`) {
		t.Errorf("unresolved svg image was modified: %q", ch.HTML)
	}
	if strings.Contains(ch.HTML, MissingImageClass) {
		t.Error("unresolved svg image was replaced by a placeholder")
	}
}

func TestComposeChapter_Links(t *testing.T) {
	f := newFixture(t, nil, epubtest.Chapter("OEBPS/text/ch1.xhtml", "One",
		`<a href="https://example.com/x">ext</a>`+
			`<a href="chapter2.xhtml#sec3">frag</a>`+
			`<a href="chapter2.xhtml">plain</a>`+
			`<a href="#local">local</a>`+
			`<a href="mailto:someone@example.com">mail</a>`))

	ch := f.compose(t, Options{}, 0)
	for _, want := range []string{
		`<a href="https://example.com/x">ext</a>`,
		`<a href="#sec3">frag</a>`,
		`<a data-epub-href="chapter2.xhtml">plain</a>`,
		`<a href="#local">local</a>`,
		`<a href="mailto:someone@example.com">mail</a>`,
	} {
		if !strings.Contains(ch.HTML, want) {
			t.Errorf("HTML does not contain %s:\n%s", want, ch.HTML)
		}
	}
}

func TestComposeChapter_ResolveUnlisted(t *testing.T) {
	f := newFixture(t,
		[]epubtest.File{{Name: "OEBPS/extra/b.png", Body: epubtest.PNG(t, 3, 3)}},
		epubtest.Chapter("OEBPS/text/ch1.xhtml", "One", `<img src="../extra/b.png"/>`),
	)

	if ch := f.compose(t, Options{}, 0); ch.ImagesMissing != 1 {
		t.Errorf("without ResolveUnlisted ImagesMissing = %d, want 1", ch.ImagesMissing)
	}
	ch := f.compose(t, Options{ResolveUnlisted: true}, 0)
	if ch.ImagesInlined != 1 || ch.ImagesMissing != 0 {
		t.Errorf("with ResolveUnlisted inlined/missing = %d/%d, want 1/0", ch.ImagesInlined, ch.ImagesMissing)
	}
}

func TestComposeChapter_UnknownIDRef(t *testing.T) {
	f := newFixture(t, nil, epubtest.Chapter("OEBPS/text/ch1.xhtml", "One", "<p>1</p>"))
	c := NewCompositor(f.archive, f.pkg, f.assets, Options{})

	ch := c.ComposeChapter(context.Background(), 1, epub.SpineItem{IDRef: "nope", Linear: true})
	if !ch.Missing || ch.HTML != "" {
		t.Errorf("ComposeChapter() = %+v, want Missing with empty HTML", ch)
	}
	if ch.Index != 1 || ch.ManifestID != "nope" {
		t.Errorf("ComposeChapter() lost its position: %+v", ch)
	}
}

func TestComposeChapter_EntryAbsent(t *testing.T) {
	f := newFixture(t, nil, epubtest.Chapter("OEBPS/text/ch1.xhtml", "One", "<p>1</p>"))
	f.pkg.Manifest["ghost"] = epub.ManifestItem{ID: "ghost", Href: "text/ghost.xhtml", MediaType: "application/xhtml+xml"}
	c := NewCompositor(f.archive, f.pkg, f.assets, Options{})

	ch := c.ComposeChapter(context.Background(), 0, epub.SpineItem{IDRef: "ghost", Linear: true})
	if !ch.Missing || ch.HTML != "" {
		t.Errorf("ComposeChapter() = %+v, want Missing with empty HTML", ch)
	}
}

func TestComposeChapter_EmptyElementsInHead(t *testing.T) {
	f := newFixture(t, nil, epubtest.Text("OEBPS/text/ch1.xhtml", `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title/><script type="text/javascript" src="../js/a.js"/><style/></head>
<body><p>Chapter text</p><a id="anchor"/><img src="../images/a.png"/></body>
</html>`))

	ch := f.compose(t, Options{}, 0)
	if ch.Missing {
		t.Fatal("chapter reported missing")
	}
	if !strings.Contains(ch.HTML, "<p>Chapter text</p>") {
		t.Errorf("HTML lost chapter text: %q", ch.HTML)
	}
	if ch.ImagesInlined != 1 {
		t.Errorf("ImagesInlined = %d, want 1", ch.ImagesInlined)
	}

	doc := parseFragment(t, ch.HTML)
	if doc.Find("a#anchor").Children().Length() != 0 {
		t.Errorf("empty anchor swallowed following content: %q", ch.HTML)
	}
}
