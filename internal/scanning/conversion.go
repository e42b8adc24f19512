package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// DefaultDPI is the rasterization density for document pages. Thermal receipt
// fonts are not resolved reliably by OCR below this.
const DefaultDPI = 300

// document is an open PDF whose pages can be rendered to PNG. go-fitz guards
// the underlying MuPDF context with a mutex, so pages may be requested from
// several goroutines.
type document struct {
	doc *fitz.Document
	dpi float64
}

// openDocument opens a PDF file for page rendering
func openDocument(path string, dpi int) (*document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &document{doc: doc, dpi: float64(dpi)}, nil
}

func (d *document) pages() int {
	return d.doc.NumPage()
}

// pagePNG renders one zero-based page and encodes it as PNG
func (d *document) pagePNG(n int) ([]byte, error) {
	img, err := d.doc.ImageDPI(n, d.dpi)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page %d: %w", n+1, err)
	}
	return encodePNG(img)
}

func (d *document) Close() error {
	return d.doc.Close()
}

// imageToPNG decodes a JPEG or PNG image and returns it PNG-encoded. PNG input
// is returned unchanged once it has decoded cleanly.
func imageToPNG(imageData []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if format == "png" {
		return imageData, nil
	}
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
