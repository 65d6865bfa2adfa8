// Package pdf opens PDF documents for extraction. Page text comes from go-fitz
// (MuPDF); embedded image XObjects come from the tabula reader.
package pdf

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/gen2brain/go-fitz"
	"github.com/tsawler/tabula/reader"

	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/observability"
)

// Parser implements domain.DocumentParser
type Parser struct {
	workDir   string
	validator *Validator
	logger    *observability.Logger
}

// NewParser creates a parser that stages documents under workDir
func NewParser(workDir string, logger *observability.Logger) *Parser {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Parser{
		workDir:   workDir,
		validator: NewValidator(logger),
		logger:    logger,
	}
}

// Open parses a PDF held in memory. The returned document must be closed.
func (p *Parser) Open(ctx context.Context, data []byte) (domain.Document, error) {
	if err := p.validator.ValidatePDFBytes(data); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, domain.CancelledError("open cancelled", ctx.Err())
	default:
	}

	fz, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, domain.ExtractionError("Failed to open PDF", err)
	}

	// tabula reads from a file, so the bytes are staged in the work dir
	scratch, err := os.CreateTemp(p.workDir, "paper-video-doc-*.pdf")
	if err != nil {
		fz.Close()
		return nil, domain.IOError("Failed to create scratch file", err)
	}
	if _, err := scratch.Write(data); err != nil {
		scratch.Close()
		os.Remove(scratch.Name())
		fz.Close()
		return nil, domain.IOError("Failed to write scratch file", err)
	}
	if _, err := scratch.Seek(0, 0); err != nil {
		scratch.Close()
		os.Remove(scratch.Name())
		fz.Close()
		return nil, domain.IOError("Failed to rewind scratch file", err)
	}

	rd, err := reader.NewReader(scratch)
	if err != nil {
		scratch.Close()
		os.Remove(scratch.Name())
		fz.Close()
		return nil, domain.ExtractionError("Failed to read PDF object structure", err)
	}

	return &Document{
		fz:      fz,
		rd:      rd,
		scratch: scratch.Name(),
		logger:  p.logger,
	}, nil
}

// Document is an open PDF. Page indexes are 0-based.
type Document struct {
	fz      *fitz.Document
	rd      *reader.Reader
	scratch string
	logger  *observability.Logger

	mu     sync.Mutex
	closed bool
}

// PageCount returns the number of pages
func (d *Document) PageCount() int {
	return d.fz.NumPage()
}

// PageText returns the plain text of a page
func (d *Document) PageText(index int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return "", domain.ExtractionError("document is closed", nil)
	}
	text, err := d.fz.Text(index)
	if err != nil {
		return "", domain.ExtractionError(fmt.Sprintf("Failed to read text of page %d", index+1), err)
	}
	return text, nil
}

// PageImages returns the embedded images of a page ordered by XObject name.
// An image that cannot be decoded faithfully fails the page with an error
// wrapping domain.ErrUndecodableImage rather than being dropped.
func (d *Document) PageImages(index int) ([]domain.RawImage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, domain.ExtractionError("document is closed", nil)
	}

	page, err := d.rd.GetPage(index)
	if err != nil {
		return nil, domain.ExtractionError(fmt.Sprintf("Failed to load page %d", index+1), err)
	}

	resources, err := page.Resources()
	if err != nil {
		// a page without resources has no images
		return nil, nil
	}

	xobjects, err := pageImageXObjects(d.rd, resources)
	if err != nil {
		return nil, domain.ExtractionError(fmt.Sprintf("Failed to list images of page %d", index+1), err)
	}

	images := make([]domain.RawImage, 0, len(xobjects))
	for i, x := range xobjects {
		raw, err := decodeImageXObject(d.rd, resources, x)
		if err != nil {
			id := domain.ImageID{Page: index + 1, Ordinal: i + 1}
			d.logger.Error().
				Stringer("image", id).
				Str("xobject", x.name).
				Err(err).
				Msg("Image cannot be decoded")
			return nil, domain.ExtractionError(fmt.Sprintf("Failed to decode image XObject %s", x.name), err).WithImage(id)
		}
		images = append(images, raw)
	}

	return images, nil
}

// Close releases MuPDF and tabula resources and removes the scratch file
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	if err := d.rd.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := d.fz.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(d.scratch); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// naturalLess orders names so that Im2 sorts before Im10
func naturalLess(a, b string) bool {
	pa, na := splitNumericSuffix(a)
	pb, nb := splitNumericSuffix(b)
	if pa != pb {
		return pa < pb
	}
	if na != nb {
		return na < nb
	}
	return a < b
}

func splitNumericSuffix(s string) (string, int) {
	i := len(s)
	for i > 0 && unicode.IsDigit(rune(s[i-1])) {
		i--
	}
	if i == len(s) {
		return s, -1
	}
	n, err := strconv.Atoi(strings.TrimLeft(s[i:], "0"))
	if err != nil {
		n = 0
	}
	return s[:i], n
}
