package epub

import (
	"encoding/xml"
	"errors"
	"path"
	"strings"
)

// opfPackage represents the OPF XML structure. Manifest and spine are
// pointers so that their absence can be told apart from emptiness.
type opfPackage struct {
	XMLName  xml.Name     `xml:"package"`
	Metadata opfMetadata  `xml:"metadata"`
	Manifest *opfManifest `xml:"manifest"`
	Spine    *opfSpine    `xml:"spine"`
	Guide    opfGuide     `xml:"guide"`
}

type opfMetadata struct {
	Title    []string  `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creator  []string  `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Language []string  `xml:"http://purl.org/dc/elements/1.1/ language"`
	Meta     []opfMeta `xml:"meta"`
}

type opfMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfSpine struct {
	ItemRefs []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

type opfGuide struct {
	References []opfReference `xml:"reference"`
}

type opfReference struct {
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

// ParsePackage reads and parses the OPF document at opfPath.
func ParsePackage(a *Archive, opfPath string) (*Package, error) {
	entry, ok := a.Get(opfPath)
	if !ok {
		return nil, &ArchiveError{Kind: KindOPFNotFound, Path: opfPath}
	}

	data, err := entry.Bytes()
	if err != nil {
		return nil, &ArchiveError{Kind: KindMalformedOPF, Path: opfPath, Err: err}
	}

	var pkg opfPackage
	if err := decodeXML(data, &pkg); err != nil {
		return nil, &ArchiveError{Kind: KindMalformedOPF, Path: opfPath, Err: err}
	}
	if pkg.Manifest == nil {
		return nil, &ArchiveError{Kind: KindMalformedOPF, Path: opfPath, Err: errors.New("missing manifest")}
	}
	if pkg.Spine == nil {
		return nil, &ArchiveError{Kind: KindMalformedOPF, Path: opfPath, Err: errors.New("missing spine")}
	}

	p := &Package{
		Path:     opfPath,
		BaseDir:  baseDir(opfPath),
		Manifest: make(map[string]ManifestItem, len(pkg.Manifest.Items)),
		Metadata: parseMetadata(&pkg.Metadata),
	}

	for _, item := range pkg.Manifest.Items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		// Duplicate ids: first declaration wins.
		if _, exists := p.Manifest[id]; exists {
			continue
		}
		p.Manifest[id] = ManifestItem{
			ID:         id,
			Href:       strings.TrimSpace(item.Href),
			MediaType:  strings.TrimSpace(item.MediaType),
			Properties: strings.Fields(item.Properties),
		}
		p.ManifestOrder = append(p.ManifestOrder, id)
	}

	for _, ref := range pkg.Spine.ItemRefs {
		p.Spine = append(p.Spine, SpineItem{
			IDRef:  strings.TrimSpace(ref.IDRef),
			Linear: ref.Linear != "no",
		})
	}

	for _, ref := range pkg.Guide.References {
		p.Guide = append(p.Guide, GuideReference{
			Type:  ref.Type,
			Title: ref.Title,
			Href:  strings.TrimSpace(ref.Href),
		})
	}

	return p, nil
}

func parseMetadata(meta *opfMetadata) Metadata {
	md := Metadata{}

	// Title (use first non-empty one)
	for _, title := range meta.Title {
		if t := strings.TrimSpace(title); t != "" {
			md.Title = t
			break
		}
	}

	if len(meta.Language) > 0 {
		md.Language = strings.TrimSpace(meta.Language[0])
	}

	for _, creator := range meta.Creator {
		if c := strings.TrimSpace(creator); c != "" {
			md.Creators = append(md.Creators, c)
		}
	}

	for _, m := range meta.Meta {
		if m.Name == "cover" && m.Content != "" {
			md.CoverID = m.Content
			break
		}
	}

	return md
}

// baseDir returns the directory of the OPF file with a trailing slash, or
// "" when the OPF sits at the archive root.
func baseDir(opfPath string) string {
	dir := path.Dir(opfPath)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir + "/"
}
