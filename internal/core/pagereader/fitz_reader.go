package pagereader

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"

	"github.com/openshelf-dev/openshelf/internal/core"
)

var _ core.PageReader = (*FitzReader)(nil)
var _ core.DocumentOpener = (*FitzOpener)(nil)

// FitzOpener opens PDF bytes with MuPDF (go-fitz).
type FitzOpener struct {
	resolutions []core.Resolution
	quality     int
}

// NewFitzOpener configures the opener with the resolution table used by
// RenderAll and the JPEG quality for all renders.
func NewFitzOpener(resolutions []core.Resolution, quality int) *FitzOpener {
	if len(resolutions) == 0 {
		resolutions = core.DefaultResolutions
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &FitzOpener{resolutions: resolutions, quality: quality}
}

// Open parses the document; the returned reader owns a MuPDF handle and
// must be closed.
func (o *FitzOpener) Open(data []byte) (core.PageReader, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidDocument, err)
	}
	return &FitzReader{doc: doc, resolutions: o.resolutions, quality: o.quality}, nil
}

// FitzReader exposes 1-indexed page access over a go-fitz document.
type FitzReader struct {
	doc         *fitz.Document
	resolutions []core.Resolution
	quality     int
}

func (r *FitzReader) PageCount() int {
	return r.doc.NumPage()
}

// checkPage maps a 1-indexed page to go-fitz's 0-indexed numbering.
func (r *FitzReader) checkPage(page int) (int, error) {
	if page < 1 || page > r.doc.NumPage() {
		return 0, fmt.Errorf("%w: page %d of %d", core.ErrPageOutOfRange, page, r.doc.NumPage())
	}
	return page - 1, nil
}

// Dimensions returns the page size in pixels at the PDF's native 72 dpi.
func (r *FitzReader) Dimensions(page int) (int, int, error) {
	n, err := r.checkPage(page)
	if err != nil {
		return 0, 0, err
	}
	bound, err := r.doc.Bound(n)
	if err != nil {
		return 0, 0, fmt.Errorf("page bounds: %w", err)
	}
	return bound.Dx(), bound.Dy(), nil
}

// Render rasterizes the page scaled to targetWidth, preserving the aspect
// ratio, and encodes it as JPEG at the configured quality.
func (r *FitzReader) Render(page, targetWidth, quality int) ([]byte, error) {
	n, err := r.checkPage(page)
	if err != nil {
		return nil, err
	}
	if targetWidth <= 0 {
		return nil, fmt.Errorf("invalid target width %d", targetWidth)
	}

	bound, err := r.doc.Bound(n)
	if err != nil {
		return nil, fmt.Errorf("page bounds: %w", err)
	}
	srcWidth := bound.Dx()
	if srcWidth <= 0 {
		return nil, fmt.Errorf("page %d has zero width", page)
	}

	// The bound is measured at 72 dpi, so scaling the DPI scales the output.
	dpi := 72.0 * float64(targetWidth) / float64(srcWidth)
	img, err := r.doc.ImageDPI(n, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode page %d: %w", page, err)
	}
	return buf.Bytes(), nil
}

// RenderAll renders the page once per configured resolution.
func (r *FitzReader) RenderAll(page int) (map[string][]byte, error) {
	out := make(map[string][]byte, len(r.resolutions))
	for _, res := range r.resolutions {
		img, err := r.Render(page, res.Width, r.quality)
		if err != nil {
			return nil, fmt.Errorf("render %q: %w", res.Name, err)
		}
		out[res.Name] = img
	}
	return out, nil
}

func (r *FitzReader) ExtractText(page int) (string, error) {
	n, err := r.checkPage(page)
	if err != nil {
		return "", err
	}
	text, err := r.doc.Text(n)
	if err != nil {
		return "", fmt.Errorf("extract text from page %d: %w", page, err)
	}
	return text, nil
}

func (r *FitzReader) Close() error {
	return r.doc.Close()
}
