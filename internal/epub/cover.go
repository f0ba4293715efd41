package epub

import (
	"path"
	"strings"
)

// CoverInfo holds information about the detected cover image.
type CoverInfo struct {
	Item            ManifestItem
	DetectionMethod string // "properties", "meta", "guide", "filename"
}

// DetectCover detects the cover image from the manifest using multiple methods.
// Methods are tried in priority order:
//  1. properties="cover-image" (EPUB 3.0)
//  2. meta name="cover" (EPUB 2.0)
//  3. guide type="cover" pointing directly at an image item
//  4. filename pattern (basename contains "cover", case-insensitive, SVG excluded)
//
// Returns nil if no cover image is found.
func (p *Package) DetectCover() *CoverInfo {
	for _, id := range p.ManifestOrder {
		item := p.Manifest[id]
		for _, prop := range item.Properties {
			if prop == "cover-image" {
				return &CoverInfo{Item: item, DetectionMethod: "properties"}
			}
		}
	}

	if p.Metadata.CoverID != "" {
		if item, ok := p.Manifest[p.Metadata.CoverID]; ok && item.IsImage() {
			return &CoverInfo{Item: item, DetectionMethod: "meta"}
		}
	}

	for _, ref := range p.Guide {
		if ref.Type != "cover" {
			continue
		}
		guideHref, _, _ := strings.Cut(ref.Href, "#")
		for _, id := range p.ManifestOrder {
			item := p.Manifest[id]
			if isRasterImage(item) && item.Href == guideHref {
				return &CoverInfo{Item: item, DetectionMethod: "guide"}
			}
		}
	}

	for _, id := range p.ManifestOrder {
		item := p.Manifest[id]
		if !isRasterImage(item) {
			continue
		}
		if strings.Contains(strings.ToLower(path.Base(item.Href)), "cover") {
			return &CoverInfo{Item: item, DetectionMethod: "filename"}
		}
	}

	return nil
}

// isRasterImage reports whether item is an image other than SVG.
func isRasterImage(item ManifestItem) bool {
	return item.IsImage() && !strings.EqualFold(strings.TrimSpace(item.MediaType), "image/svg+xml")
}
