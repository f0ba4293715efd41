// Package epubtest builds small in-memory EPUB archives for tests.
package epubtest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

// File is a single archive entry.
type File struct {
	Name string
	Body []byte
}

// Item is a manifest item written by OPF.
type Item struct {
	ID         string
	Href       string
	MediaType  string
	Properties string
}

// Text returns a file with a string body.
func Text(name, body string) File {
	return File{Name: name, Body: []byte(body)}
}

// Mimetype returns the stored mimetype entry.
func Mimetype() File {
	return Text("mimetype", "application/epub+zip")
}

// Container returns META-INF/container.xml pointing at opfPath.
func Container(opfPath string) File {
	return Text("META-INF/container.xml", fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="%s" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`, opfPath))
}

// OPF returns a package document listing items and the spine idrefs.
func OPF(name, title string, items []Item, spine ...string) File {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="uid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>` + title + `</dc:title>
    <dc:language>en</dc:language>
    <dc:identifier id="uid">urn:uuid:epubtest</dc:identifier>
  </metadata>
  <manifest>
`)
	for _, it := range items {
		props := ""
		if it.Properties != "" {
			props = fmt.Sprintf(` properties="%s"`, it.Properties)
		}
		fmt.Fprintf(&b, "    <item id=\"%s\" href=\"%s\" media-type=\"%s\"%s/>\n", it.ID, it.Href, it.MediaType, props)
	}
	b.WriteString("  </manifest>\n  <spine>\n")
	for _, id := range spine {
		fmt.Fprintf(&b, "    <itemref idref=\"%s\"/>\n", id)
	}
	b.WriteString("  </spine>\n</package>")
	return Text(name, b.String())
}

// Chapter returns an XHTML chapter with the given body markup.
func Chapter(name, title, body string) File {
	return Text(name, `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:xlink="http://www.w3.org/1999/xlink">
<head><title>`+title+`</title></head>
<body>`+body+`</body>
</html>`)
}

// Zip writes files into a zip container, mimetype stored first when present.
func Zip(t testing.TB, files ...File) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, f := range files {
		method := zip.Deflate
		if f.Name == "mimetype" {
			method = zip.Store
		}
		fw, err := w.CreateHeader(&zip.FileHeader{Name: f.Name, Method: method})
		if err != nil {
			t.Fatalf("failed to create %s: %v", f.Name, err)
		}
		if _, err := fw.Write(f.Body); err != nil {
			t.Fatalf("failed to write %s: %v", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

// PNG returns an encoded opaque PNG of the given size.
func PNG(t testing.TB, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, fill(width, height)); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// JPEG returns an encoded JPEG of the given size.
func JPEG(t testing.TB, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, fill(width, height), &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func fill(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}
