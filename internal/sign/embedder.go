package sign

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/paperdesk/be-doc-approvals/internal/platform/errors"
)

// ErrCorruptInput marks a base artifact that is not a well-formed PDF. This
// is a data error ("re-upload this file"), distinct from retryable renderer
// failures.
var ErrCorruptInput = errors.New(errors.ErrCodeInvalidInput, "base artifact is not a well-formed PDF")

// AnchorOutOfBoundsError is returned when a requested placement exceeds the
// document's page count.
type AnchorOutOfBoundsError struct {
	Page      int
	PageCount int
}

func (e *AnchorOutOfBoundsError) Error() string {
	return fmt.Sprintf("signature anchor on page %d exceeds page count %d", e.Page, e.PageCount)
}

// PlacedSignature is one signature image with its page anchor. Offsets are in
// points from the bottom-left corner of the page.
type PlacedSignature struct {
	Image   Image
	Page    int
	OffsetX float64
	OffsetY float64
	Scale   float64 // absolute scale factor applied to the image
}

// DefaultAnchor returns the deterministic placement for the given approval
// level: signatures line up left to right along the bottom of the page, one
// slot per level, so re-embedding the same chain always yields the same
// layout.
func DefaultAnchor(level, page int, img Image) PlacedSignature {
	return PlacedSignature{
		Image:   img,
		Page:    page,
		OffsetX: 40 + float64(level-1)*170,
		OffsetY: 40,
		Scale:   0.18,
	}
}

// Embedder composites signature images onto PDF pages. Embedding is purely
// additive: page content, page count and the text layer are left untouched.
type Embedder struct {
	conf *model.Configuration
}

// NewEmbedder creates an Embedder with relaxed validation, matching what
// renderer-produced PDFs need in practice.
func NewEmbedder() *Embedder {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Embedder{conf: conf}
}

// PageCount returns the page count of a PDF, or ErrCorruptInput.
func (e *Embedder) PageCount(base []byte) (int, error) {
	if err := api.Validate(bytes.NewReader(base), e.conf); err != nil {
		return 0, ErrCorruptInput
	}
	n, err := api.PageCount(bytes.NewReader(base), e.conf)
	if err != nil {
		return 0, ErrCorruptInput
	}
	return n, nil
}

// Embed stamps each signature at its anchor and returns the new PDF. The base
// is validated up front so corruption surfaces as a typed error rather than a
// crash mid-composition, and all anchors are bounds-checked before the first
// stamp so a failed call leaves nothing half-applied.
func (e *Embedder) Embed(base []byte, sigs []PlacedSignature) ([]byte, error) {
	pageCount, err := e.PageCount(base)
	if err != nil {
		return nil, err
	}
	for _, sig := range sigs {
		if sig.Page < 1 || sig.Page > pageCount {
			return nil, &AnchorOutOfBoundsError{Page: sig.Page, PageCount: pageCount}
		}
		if sig.Image.IsZero() {
			return nil, errors.InvalidInput("signature_image", "signature image is empty")
		}
	}

	current := base
	for _, sig := range sigs {
		desc := fmt.Sprintf("pos:bl, off:%.0f %.0f, scale:%.2f abs, rot:0",
			sig.OffsetX, sig.OffsetY, sig.Scale)
		wm, err := api.ImageWatermarkForReader(bytes.NewReader(sig.Image.Bytes()), desc, true, false, types.POINTS)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to prepare signature stamp")
		}

		var out bytes.Buffer
		pages := []string{strconv.Itoa(sig.Page)}
		if err := api.AddWatermarks(bytes.NewReader(current), &out, pages, wm, e.conf); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to composite signature")
		}
		current = out.Bytes()
	}
	return current, nil
}
