// Package convert classifies uploaded file formats and turns office formats
// into PDF through an external rendering engine managed by a bounded pool.
package convert

import (
	"path/filepath"
	"strings"
)

// Format is the classification of a declared file name.
type Format string

const (
	FormatPDF         Format = "native-pdf"
	FormatImage       Format = "native-image"
	FormatText        Format = "native-text"
	FormatOffice      Format = "office-convertible"
	FormatUnsupported Format = "unsupported"
)

var (
	imageExts = map[string]bool{
		"png": true, "jpg": true, "jpeg": true, "gif": true, "bmp": true, "webp": true,
	}
	textExts = map[string]bool{
		"txt": true, "md": true, "csv": true,
	}
	officeExts = map[string]bool{
		"doc": true, "docx": true, "xls": true, "xlsx": true,
		"ppt": true, "pptx": true, "odt": true, "ods": true,
		"odp": true, "rtf": true,
	}
)

// Classify maps a declared file name to its format class. Unsupported types
// are rejected at submission time so they are never discovered at approval
// time.
func Classify(fileName string) Format {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	switch {
	case ext == "pdf":
		return FormatPDF
	case imageExts[ext]:
		return FormatImage
	case textExts[ext]:
		return FormatText
	case officeExts[ext]:
		return FormatOffice
	default:
		return FormatUnsupported
	}
}

// NeedsConversion reports whether the format must be rendered to PDF before
// preview or signing.
func (f Format) NeedsConversion() bool {
	return f == FormatOffice
}

// Previewable reports whether the format can be presented at all, natively
// or after conversion.
func (f Format) Previewable() bool {
	return f != FormatUnsupported
}
