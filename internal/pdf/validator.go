package pdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/observability"
)

// largeFileBytes is the size above which a warning is logged
const largeFileBytes = 100 * 1024 * 1024

var pdfMagic = []byte("%PDF-")

// Validator provides input validation for PDF files
type Validator struct {
	logger *observability.Logger
}

// NewValidator creates a new validator instance
func NewValidator(logger *observability.Logger) *Validator {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Validator{logger: logger}
}

// ValidatePDFPath validates that a file path is valid and points to a PDF
func (v *Validator) ValidatePDFPath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}

	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".pdf" {
		return domain.ValidationError(fmt.Sprintf("file is not a PDF (has extension %s)", ext), nil)
	}

	if info.Size() > largeFileBytes {
		v.logger.Warn().
			Str("path", path).
			Int64("size_mb", info.Size()/(1024*1024)).
			Msg("PDF file is very large, processing may take a while")
	}

	return nil
}

// ValidatePDFBytes checks that data looks like a PDF document
func (v *Validator) ValidatePDFBytes(data []byte) error {
	if len(data) == 0 {
		return domain.ValidationError("document is empty", nil)
	}

	// the header may be preceded by garbage within the first 1024 bytes
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if !bytes.Contains(head, pdfMagic) {
		return domain.ValidationError("document is not a PDF (missing %PDF- header)", nil)
	}

	if len(data) > largeFileBytes {
		v.logger.Warn().
			Int64("size_mb", int64(len(data))/(1024*1024)).
			Msg("PDF document is very large, processing may take a while")
	}

	return nil
}

// ReadPDF validates path and returns the file contents
func (v *Validator) ReadPDF(path string) ([]byte, error) {
	if err := v.ValidatePDFPath(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("cannot read file: %s", path), err)
	}
	if err := v.ValidatePDFBytes(data); err != nil {
		return nil, err
	}
	return data, nil
}
