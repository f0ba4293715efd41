package resolver

import (
	"context"
	"encoding/base64"
	"log/slog"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/yuanying/epubinline/internal/epub"
)

// Options configures a Resolver.
type Options struct {
	// MaxImageWidth downscales wider JPEG/PNG images; 0 disables.
	MaxImageWidth int
	Logger        *slog.Logger
}

// Resolution is the outcome of resolving one manifest image.
type Resolution struct {
	Item epub.ManifestItem
	Path string   // archive entry that matched, "" when unresolved
	URI  string   // data URI, "" when unresolved
	Keys []string // every variant the URI is registered under
	Err  error    // decode failure of a matched entry
}

// OK reports whether the image was inlined.
func (r Resolution) OK() bool {
	return r.URI != ""
}

// Resolver finds archive entries for references and keeps the asset cache
// of one pipeline invocation.
type Resolver struct {
	archive    *epub.Archive
	baseDir    string
	cache      *Cache
	folded     map[string]string // lower-cased path -> archive path
	downscaler *Downscaler
	logger     *slog.Logger
}

// New returns a resolver over archive for a package rooted at baseDir.
func New(archive *epub.Archive, baseDir string, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	paths := archive.Paths()
	folded := make(map[string]string, len(paths))
	for _, p := range paths {
		lp := strings.ToLower(p)
		if _, exists := folded[lp]; !exists {
			folded[lp] = p
		}
	}

	return &Resolver{
		archive:    archive,
		baseDir:    baseDir,
		cache:      NewCache(),
		folded:     folded,
		downscaler: NewDownscaler(opts.MaxImageWidth),
		logger:     logger,
	}
}

// Cache returns the asset cache.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// BaseDir returns the package base directory.
func (r *Resolver) BaseDir() string {
	return r.baseDir
}

// Find returns the first candidate present in the archive. All candidates
// are tried verbatim before any is tried case-insensitively.
func (r *Resolver) Find(candidates []string) (*epub.Entry, bool) {
	for _, c := range candidates {
		if e, ok := r.archive.Get(c); ok {
			return e, true
		}
	}
	for _, c := range candidates {
		if p, ok := r.folded[strings.ToLower(c)]; ok {
			return r.archive.Get(p)
		}
	}
	return nil, false
}

// ResolveItem locates a manifest image and encodes it as a data URI. It
// does not touch the cache; see Register.
func (r *Resolver) ResolveItem(ctx context.Context, item epub.ManifestItem) Resolution {
	res := Resolution{Item: item}
	candidates := ImageCandidates(r.baseDir, item.Href)

	entry, ok := r.Find(candidates)
	if !ok {
		r.logger.WarnContext(ctx, "image not found in archive", "id", item.ID, "href", item.Href)
		return res
	}
	res.Path = entry.Path

	data, err := entry.Bytes()
	if err != nil {
		res.Err = err
		r.logger.WarnContext(ctx, "could not read image", "id", item.ID, "path", entry.Path, "error", err)
		return res
	}

	res.URI = r.encode(ctx, item.MediaType, entry.Path, data)
	res.Keys = append(candidates, item.Href, path.Base(item.Href), entry.Path)
	return res
}

// Register adds a successful resolution to the cache.
func (r *Resolver) Register(res Resolution) {
	if res.OK() {
		r.cache.Register(res.Keys, res.URI)
	}
}

// Lookup resolves a src found in a chapter located in chapterDir against
// the cache.
func (r *Resolver) Lookup(chapterDir, src string) (string, bool) {
	if !IsInlineable(src) {
		return "", false
	}
	return r.cache.LookupAny(ReferenceCandidates(chapterDir, r.baseDir, src))
}

// ResolveUnlisted inlines an archive entry that a chapter references but
// the manifest does not list. The result is cached under the reference's
// candidates.
func (r *Resolver) ResolveUnlisted(ctx context.Context, chapterDir, src string) (string, bool) {
	if !IsInlineable(src) {
		return "", false
	}
	candidates := ReferenceCandidates(chapterDir, r.baseDir, src)
	entry, ok := r.Find(candidates)
	if !ok {
		return "", false
	}
	data, err := entry.Bytes()
	if err != nil {
		r.logger.WarnContext(ctx, "could not read unlisted image", "path", entry.Path, "error", err)
		return "", false
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", false
	}

	uri := r.encode(ctx, mt.String(), entry.Path, data)
	r.cache.Register(append(candidates, entry.Path), uri)
	return uri, true
}

func (r *Resolver) encode(ctx context.Context, declared, entryPath string, data []byte) string {
	mediaType := sniffMediaType(declared, data)
	if out, warning := r.downscaler.Downscale(mediaType, data); warning != "" {
		r.logger.WarnContext(ctx, "image passed through unscaled", "path", entryPath, "reason", warning)
	} else {
		data = out
	}
	return DataURI(mediaType, data)
}

// DataURI builds a base64 data URI.
func DataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// sniffMediaType prefers the payload's detected image type over a declared
// type it contradicts; manifests frequently mislabel PNGs as JPEGs.
func sniffMediaType(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	detected := mimetype.Detect(data)
	name, _, _ := strings.Cut(detected.String(), ";")
	if !strings.HasPrefix(name, "image/") {
		if declared == "" {
			return "application/octet-stream"
		}
		return declared
	}
	if declared != "" && detected.Is(declared) {
		return declared
	}
	return name
}
