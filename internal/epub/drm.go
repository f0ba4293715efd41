package epub

import (
	"encoding/xml"
	"errors"
)

const (
	encryptionPath = "META-INF/encryption.xml"
	sinfPath       = "META-INF/sinf.xml" // Apple FairPlay
)

// Font obfuscation is not DRM; those entries are tolerated.
var fontObfuscationAlgorithms = map[string]bool{
	"http://www.idpf.org/2008/embedding": true,
	"http://ns.adobe.com/pdf/enc#RC":     true,
}

type encryption struct {
	XMLName       xml.Name        `xml:"encryption"`
	EncryptedData []encryptedData `xml:"EncryptedData"`
}

type encryptedData struct {
	EncryptionMethod struct {
		Algorithm string `xml:"Algorithm,attr"`
	} `xml:"EncryptionMethod"`
}

// CheckDRM rejects archives whose content is encrypted. An encryption.xml
// that only declares font obfuscation is accepted.
func CheckDRM(a *Archive) error {
	if _, ok := a.Get(sinfPath); ok {
		return &ArchiveError{Kind: KindDRMProtected, Path: sinfPath}
	}

	entry, ok := a.Get(encryptionPath)
	if !ok {
		return nil
	}

	data, err := entry.Bytes()
	if err != nil {
		return &ArchiveError{Kind: KindDRMProtected, Path: encryptionPath, Err: err}
	}

	var enc encryption
	if err := decodeXML(data, &enc); err != nil {
		// Unreadable encryption descriptor: assume the worst.
		return &ArchiveError{Kind: KindDRMProtected, Path: encryptionPath, Err: err}
	}

	for _, ed := range enc.EncryptedData {
		if !fontObfuscationAlgorithms[ed.EncryptionMethod.Algorithm] {
			return &ArchiveError{
				Kind: KindDRMProtected,
				Path: encryptionPath,
				Err:  errors.New("encrypted resource uses " + ed.EncryptionMethod.Algorithm),
			}
		}
	}

	return nil
}
