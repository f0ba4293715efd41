package epub

import "errors"

// ErrorKind classifies structural failures of an EPUB archive.
type ErrorKind int

const (
	KindInvalidArchive ErrorKind = iota + 1
	KindContainerNotFound
	KindMalformedContainer
	KindOPFNotFound
	KindMalformedOPF
	KindDRMProtected
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArchive:
		return "invalid zip archive"
	case KindContainerNotFound:
		return "container.xml not found"
	case KindMalformedContainer:
		return "malformed container.xml"
	case KindOPFNotFound:
		return "opf not found"
	case KindMalformedOPF:
		return "malformed opf"
	case KindDRMProtected:
		return "archive is DRM protected"
	default:
		return "unknown archive error"
	}
}

// ArchiveError is a structural error: the archive cannot be turned into a
// document at all. Path names the archive entry involved, if any.
type ArchiveError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	msg := "epub: " + e.Kind.String()
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// Is matches the bare sentinels below by kind, so callers can write
// errors.Is(err, epub.ErrContainerNotFound).
func (e *ArchiveError) Is(target error) bool {
	t, ok := target.(*ArchiveError)
	if !ok {
		return false
	}
	return t.Path == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinel errors, one per structural failure kind.
var (
	ErrInvalidArchive     = &ArchiveError{Kind: KindInvalidArchive}
	ErrContainerNotFound  = &ArchiveError{Kind: KindContainerNotFound}
	ErrMalformedContainer = &ArchiveError{Kind: KindMalformedContainer}
	ErrOPFNotFound        = &ArchiveError{Kind: KindOPFNotFound}
	ErrMalformedOPF       = &ArchiveError{Kind: KindMalformedOPF}
	ErrDRMProtected       = &ArchiveError{Kind: KindDRMProtected}
)

// Entry-level errors. These are never structural.
var (
	ErrEntryTooLarge = errors.New("epub: archive entry exceeds size limit")
	ErrReleased      = errors.New("epub: archive buffers released")
)
