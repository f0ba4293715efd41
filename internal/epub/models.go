package epub

import (
	"path"
	"strings"
)

// Package represents the parsed Open Package Format document
type Package struct {
	Path          string
	BaseDir       string                  // directory of the OPF with trailing "/", "" at archive root
	Metadata      Metadata
	Manifest      map[string]ManifestItem // id -> item
	ManifestOrder []string                // ids in document order
	Spine         []SpineItem
	Guide         []GuideReference
}

// Metadata represents the subset of Dublin Core metadata the reader shows
type Metadata struct {
	Title    string
	Creators []string
	Language string
	CoverID  string // EPUB 2.0 cover image manifest item ID (from meta name="cover")
}

// ManifestItem represents an item in the manifest. Href is relative to
// the package base directory, exactly as written in the OPF.
type ManifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties []string
}

// SpineItem represents an item reference in the spine
type SpineItem struct {
	IDRef  string
	Linear bool
}

// GuideReference represents an EPUB 2.0 guide reference
type GuideReference struct {
	Type  string
	Title string
	Href  string
}

// IsImage reports whether the item is an image resource.
func (m ManifestItem) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(m.MediaType)), "image/")
}

// Images returns the image items of the manifest in document order.
func (p *Package) Images() []ManifestItem {
	var items []ManifestItem
	for _, id := range p.ManifestOrder {
		if item := p.Manifest[id]; item.IsImage() {
			items = append(items, item)
		}
	}
	return items
}

// ItemPath returns the nominal archive path of a manifest item: the href,
// without fragment, joined to the base directory.
func (p *Package) ItemPath(item ManifestItem) string {
	href, _, _ := strings.Cut(item.Href, "#")
	if href == "" {
		return ""
	}
	return strings.TrimPrefix(path.Clean(p.BaseDir+href), "/")
}
