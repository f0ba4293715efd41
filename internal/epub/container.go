package epub

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"

	"golang.org/x/net/html/charset"
)

// ContainerPath is the fixed EPUB entry point.
const ContainerPath = "META-INF/container.xml"

// container.xml structure
type container struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []rootFile `xml:"rootfiles>rootfile"`
}

type rootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// ResolveOPFPath reads META-INF/container.xml and returns the full-path of
// its first rootfile.
func ResolveOPFPath(a *Archive) (string, error) {
	entry, ok := a.Get(ContainerPath)
	if !ok {
		return "", &ArchiveError{Kind: KindContainerNotFound, Path: ContainerPath}
	}

	data, err := entry.Bytes()
	if err != nil {
		return "", &ArchiveError{Kind: KindMalformedContainer, Path: ContainerPath, Err: err}
	}

	var c container
	if err := decodeXML(data, &c); err != nil {
		return "", &ArchiveError{Kind: KindMalformedContainer, Path: ContainerPath, Err: err}
	}

	if len(c.RootFiles) == 0 {
		return "", &ArchiveError{Kind: KindMalformedContainer, Path: ContainerPath, Err: errors.New("no rootfile element")}
	}

	fullPath := normalizePath(strings.TrimSpace(c.RootFiles[0].FullPath))
	if fullPath == "" {
		return "", &ArchiveError{Kind: KindMalformedContainer, Path: ContainerPath, Err: errors.New("rootfile has empty full-path")}
	}

	return fullPath, nil
}

// decodeXML unmarshals data, honouring non-UTF-8 encoding declarations and
// the HTML named entities some authoring tools leak into package files.
func decodeXML(data []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(stripBOM(data)))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Entity = xml.HTMLEntity
	return dec.Decode(v)
}
