// Package sign models signature images and composites them onto PDF
// artifacts without touching any other page content.
package sign

import (
	"bytes"

	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
)

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
)

// Image is a validated signature image: raw bytes plus declared MIME type.
// It is validated once at the boundary and carried immutably afterwards;
// layers past the boundary never re-inspect the payload.
type Image struct {
	data []byte
	mime string
}

// NewImage validates the payload and returns an immutable Image. An empty or
// non-image payload is rejected here, before any embedding is attempted.
func NewImage(data []byte, mime string) (Image, error) {
	if len(data) == 0 {
		return Image{}, errors.InvalidInput("signature_image", "signature image is empty")
	}
	switch mime {
	case "image/png":
		if !bytes.HasPrefix(data, pngMagic) {
			return Image{}, errors.InvalidInput("signature_image", "payload is not a PNG image")
		}
	case "image/jpeg":
		if !bytes.HasPrefix(data, jpegMagic) {
			return Image{}, errors.InvalidInput("signature_image", "payload is not a JPEG image")
		}
	default:
		return Image{}, errors.InvalidInput("signature_image", "unsupported signature image type: "+mime)
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return Image{data: copied, mime: mime}, nil
}

// Bytes returns the image payload. Callers must not mutate it.
func (i Image) Bytes() []byte { return i.data }

// MIME returns the declared MIME type.
func (i Image) MIME() string { return i.mime }

// IsZero reports whether the image is the zero value.
func (i Image) IsZero() bool { return len(i.data) == 0 }
