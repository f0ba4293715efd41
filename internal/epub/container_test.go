package epub

import (
	"errors"
	"testing"

	"github.com/yuanying/epubinline/internal/epubtest"
)

func openTestArchive(t *testing.T, files ...epubtest.File) *Archive {
	t.Helper()
	a, err := OpenArchive(epubtest.Zip(t, files...))
	if err != nil {
		t.Fatalf("OpenArchive() failed: %v", err)
	}
	return a
}

func TestResolveOPFPath(t *testing.T) {
	a := openTestArchive(t, epubtest.Mimetype(), epubtest.Container("OEBPS/content.opf"))

	got, err := ResolveOPFPath(a)
	if err != nil {
		t.Fatalf("ResolveOPFPath() failed: %v", err)
	}
	if got != "OEBPS/content.opf" {
		t.Errorf("ResolveOPFPath() = %q, want %q", got, "OEBPS/content.opf")
	}
}

func TestResolveOPFPath_FirstRootfileWins(t *testing.T) {
	a := openTestArchive(t, epubtest.Text(ContainerPath, `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="book/first.opf" media-type="application/oebps-package+xml"/>
    <rootfile full-path="book/second.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`))

	got, err := ResolveOPFPath(a)
	if err != nil {
		t.Fatalf("ResolveOPFPath() failed: %v", err)
	}
	if got != "book/first.opf" {
		t.Errorf("ResolveOPFPath() = %q, want %q", got, "book/first.opf")
	}
}

func TestResolveOPFPath_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files []epubtest.File
		want  error
	}{
		{
			name:  "missing container",
			files: []epubtest.File{epubtest.Mimetype()},
			want:  ErrContainerNotFound,
		},
		{
			name:  "not xml",
			files: []epubtest.File{epubtest.Text(ContainerPath, "this is not xml")},
			want:  ErrMalformedContainer,
		},
		{
			name:  "truncated xml",
			files: []epubtest.File{epubtest.Text(ContainerPath, `<container><rootfiles><rootfile full-path="a.opf"`)},
			want:  ErrMalformedContainer,
		},
		{
			name:  "no rootfile",
			files: []epubtest.File{epubtest.Text(ContainerPath, `<container><rootfiles></rootfiles></container>`)},
			want:  ErrMalformedContainer,
		},
		{
			name:  "empty full-path",
			files: []epubtest.File{epubtest.Text(ContainerPath, `<container><rootfiles><rootfile full-path=""/></rootfiles></container>`)},
			want:  ErrMalformedContainer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := openTestArchive(t, tt.files...)
			_, err := ResolveOPFPath(a)
			if !errors.Is(err, tt.want) {
				t.Errorf("ResolveOPFPath() error = %v, want %v", err, tt.want)
			}
		})
	}
}
