package epub

import (
	"errors"
	"testing"

	"github.com/yuanying/epubinline/internal/epubtest"
)

func TestParsePackage(t *testing.T) {
	a := openTestArchive(t, epubtest.OPF("OEBPS/content.opf", "Test Book",
		[]epubtest.Item{
			{ID: "ch2", Href: "text/ch2.xhtml", MediaType: "application/xhtml+xml"},
			{ID: "ch1", Href: "text/ch1.xhtml", MediaType: "application/xhtml+xml"},
			{ID: "img", Href: "images/a.png", MediaType: "image/png"},
		},
		"ch1", "ch2", "ghost",
	))

	pkg, err := ParsePackage(a, "OEBPS/content.opf")
	if err != nil {
		t.Fatalf("ParsePackage() failed: %v", err)
	}

	if pkg.BaseDir != "OEBPS/" {
		t.Errorf("BaseDir = %q, want %q", pkg.BaseDir, "OEBPS/")
	}
	if pkg.Metadata.Title != "Test Book" {
		t.Errorf("Title = %q, want %q", pkg.Metadata.Title, "Test Book")
	}
	if len(pkg.Manifest) != 3 {
		t.Fatalf("Manifest size = %d, want 3", len(pkg.Manifest))
	}
	if item := pkg.Manifest["img"]; item.Href != "images/a.png" || item.MediaType != "image/png" {
		t.Errorf("Manifest[img] = %+v", item)
	}

	// Spine order is load-bearing and must be preserved, including
	// idrefs that do not resolve.
	wantSpine := []string{"ch1", "ch2", "ghost"}
	if len(pkg.Spine) != len(wantSpine) {
		t.Fatalf("Spine length = %d, want %d", len(pkg.Spine), len(wantSpine))
	}
	for i, want := range wantSpine {
		if pkg.Spine[i].IDRef != want {
			t.Errorf("Spine[%d] = %q, want %q", i, pkg.Spine[i].IDRef, want)
		}
	}

	images := pkg.Images()
	if len(images) != 1 || images[0].ID != "img" {
		t.Errorf("Images() = %+v", images)
	}
}

func TestParsePackage_RootBaseDir(t *testing.T) {
	a := openTestArchive(t, epubtest.OPF("content.opf", "Root", nil))

	pkg, err := ParsePackage(a, "content.opf")
	if err != nil {
		t.Fatalf("ParsePackage() failed: %v", err)
	}
	if pkg.BaseDir != "" {
		t.Errorf("BaseDir = %q, want empty", pkg.BaseDir)
	}
}

func TestParsePackage_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files []epubtest.File
		want  error
	}{
		{
			name: "opf not found",
			want: ErrOPFNotFound,
		},
		{
			name:  "malformed xml",
			files: []epubtest.File{epubtest.Text("OEBPS/content.opf", "<package><manifest>")},
			want:  ErrMalformedOPF,
		},
		{
			name: "missing manifest",
			files: []epubtest.File{epubtest.Text("OEBPS/content.opf",
				`<package xmlns="http://www.idpf.org/2007/opf"><spine><itemref idref="a"/></spine></package>`)},
			want: ErrMalformedOPF,
		},
		{
			name: "missing spine",
			files: []epubtest.File{epubtest.Text("OEBPS/content.opf",
				`<package xmlns="http://www.idpf.org/2007/opf"><manifest><item id="a" href="a.xhtml" media-type="application/xhtml+xml"/></manifest></package>`)},
			want: ErrMalformedOPF,
		},
		{
			name:  "wrong root element",
			files: []epubtest.File{epubtest.Text("OEBPS/content.opf", `<html><body/></html>`)},
			want:  ErrMalformedOPF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := append([]epubtest.File{epubtest.Mimetype()}, tt.files...)
			a := openTestArchive(t, files...)
			_, err := ParsePackage(a, "OEBPS/content.opf")
			if !errors.Is(err, tt.want) {
				t.Errorf("ParsePackage() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParsePackage_HTMLEntitiesInMetadata(t *testing.T) {
	a := openTestArchive(t, epubtest.Text("content.opf", `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Caf&eacute; &mdash; Stories</dc:title>
  </metadata>
  <manifest/>
  <spine/>
</package>`))

	pkg, err := ParsePackage(a, "content.opf")
	if err != nil {
		t.Fatalf("ParsePackage() failed: %v", err)
	}
	if pkg.Metadata.Title != "Café — Stories" {
		t.Errorf("Title = %q", pkg.Metadata.Title)
	}
}

func TestPackage_ItemPath(t *testing.T) {
	pkg := &Package{BaseDir: "OEBPS/"}
	tests := []struct {
		href string
		want string
	}{
		{"text/ch1.xhtml", "OEBPS/text/ch1.xhtml"},
		{"text/ch1.xhtml#part2", "OEBPS/text/ch1.xhtml"},
		{"../other/ch1.xhtml", "other/ch1.xhtml"},
		{"./ch1.xhtml", "OEBPS/ch1.xhtml"},
	}
	for _, tt := range tests {
		if got := pkg.ItemPath(ManifestItem{Href: tt.href}); got != tt.want {
			t.Errorf("ItemPath(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}
