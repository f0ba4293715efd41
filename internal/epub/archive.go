package epub

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// defaultMaxEntrySize bounds the decompressed size of a single entry
// (zip bomb guard). 256 MB.
const defaultMaxEntrySize int64 = 256 * 1024 * 1024

// xmlEncodingRe extracts the encoding label from an XML declaration.
var xmlEncodingRe = regexp.MustCompile(`^\s*<\?xml[^>]*encoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)

// Archive is a read-only index over the entries of an in-memory zip
// container. Entries are decompressed lazily, on first read.
type Archive struct {
	entries      map[string]*Entry
	order        []string
	maxEntrySize int64
}

// ArchiveOption configures OpenArchive.
type ArchiveOption func(*Archive)

// WithMaxEntrySize overrides the per-entry decompression limit.
func WithMaxEntrySize(n int64) ArchiveOption {
	return func(a *Archive) {
		if n > 0 {
			a.maxEntrySize = n
		}
	}
}

// OpenArchive indexes the zip container held in data.
func OpenArchive(data []byte, opts ...ArchiveOption) (*Archive, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ArchiveError{Kind: KindInvalidArchive, Err: err}
	}

	a := &Archive{
		entries:      make(map[string]*Entry, len(zr.File)),
		maxEntrySize: defaultMaxEntrySize,
	}
	for _, opt := range opts {
		opt(a)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := normalizePath(f.Name)
		if name == "" {
			continue
		}
		// First entry wins on duplicate names.
		if _, exists := a.entries[name]; exists {
			continue
		}
		a.entries[name] = &Entry{Path: name, file: f, limit: a.maxEntrySize}
		a.order = append(a.order, name)
	}

	return a, nil
}

// Get looks up an entry by its exact, case-sensitive path.
func (a *Archive) Get(path string) (*Entry, bool) {
	e, ok := a.entries[path]
	return e, ok
}

// Paths returns every entry path, sorted.
func (a *Archive) Paths() []string {
	paths := make([]string, len(a.order))
	copy(paths, a.order)
	sort.Strings(paths)
	return paths
}

// Len returns the number of file entries.
func (a *Archive) Len() int {
	return len(a.order)
}

// Release drops every decompressed buffer. Reads after Release fail
// with ErrReleased.
func (a *Archive) Release() {
	for _, e := range a.entries {
		e.release()
	}
}

// Entry is a single file in the archive.
type Entry struct {
	Path string

	file  *zip.File
	limit int64

	mu       sync.Mutex
	loaded   bool
	released bool
	data     []byte
	err      error
	reads    atomic.Int32
}

// Bytes returns the decompressed entry. The first call decompresses;
// later calls return the memoized result.
func (e *Entry) Bytes() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return nil, ErrReleased
	}
	if !e.loaded {
		e.data, e.err = e.read()
		e.loaded = true
	}
	return e.data, e.err
}

// Text returns the entry as a UTF-8 string. A leading BOM is dropped and
// non-UTF-8 content is transcoded using the declared or sniffed charset.
func (e *Entry) Text() (string, error) {
	data, err := e.Bytes()
	if err != nil {
		return "", err
	}
	data = stripBOM(data)
	if utf8.Valid(data) {
		return string(data), nil
	}

	enc, _, _ := charset.DetermineEncoding(data, "text/html")
	if m := xmlEncodingRe.FindSubmatch(data); m != nil {
		if declared, _ := charset.Lookup(string(m[1])); declared != nil {
			enc = declared
		}
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("epub: decode %s: %w", e.Path, err)
	}
	return string(decoded), nil
}

// Base64 returns the entry encoded with standard base64.
func (e *Entry) Base64() (string, error) {
	data, err := e.Bytes()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Reads reports how many times the underlying zip entry was decompressed.
func (e *Entry) Reads() int {
	return int(e.reads.Load())
}

func (e *Entry) read() ([]byte, error) {
	e.reads.Add(1)

	if e.file.UncompressedSize64 > uint64(e.limit) {
		return nil, fmt.Errorf("%w: %s (%d bytes, max %d)", ErrEntryTooLarge, e.Path, e.file.UncompressedSize64, e.limit)
	}

	rc, err := e.file.Open()
	if err != nil {
		return nil, fmt.Errorf("epub: open %s: %w", e.Path, err)
	}
	defer rc.Close()

	// Read one byte past the limit; the declared size may be forged.
	data, err := io.ReadAll(io.LimitReader(rc, e.limit+1))
	if err != nil {
		return nil, fmt.Errorf("epub: read %s: %w", e.Path, err)
	}
	if int64(len(data)) > e.limit {
		return nil, fmt.Errorf("%w: %s", ErrEntryTooLarge, e.Path)
	}
	return data, nil
}

func (e *Entry) release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.data = nil
	e.err = nil
	e.released = true
}

// normalizePath turns a zip entry name into the index key: forward
// slashes, no leading "./".
func normalizePath(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	for strings.HasPrefix(name, "./") {
		name = strings.TrimPrefix(name, "./")
	}
	return name
}

// stripBOM removes a leading UTF-8 byte order mark.
func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}
