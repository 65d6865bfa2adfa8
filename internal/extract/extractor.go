package extract

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/observability"
)

// Section markers, matched case-insensitively.
const (
	markerAbstract     = "abstract"
	markerIntroduction = "introduction"
	markerConclusion   = "conclusion"
	markerReferences   = "references"
)

// Content is everything the pipeline needs from a document
type Content struct {
	Sections domain.ExtractionResult
	Images   []domain.ImageAsset
}

// Extractor locates text sections and embedded images in a document
type Extractor struct {
	parser domain.DocumentParser
	logger *observability.Logger
}

// NewExtractor creates a new extractor
func NewExtractor(parser domain.DocumentParser, logger *observability.Logger) *Extractor {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Extractor{
		parser: parser,
		logger: logger.WithStage("extracting"),
	}
}

// Extract opens the document, pulls sections and images, and closes it.
// A document without images fails with domain.ErrNoImagesFound.
func (e *Extractor) Extract(ctx context.Context, data []byte) (*Content, error) {
	startTime := time.Now()

	doc, err := e.parser.Open(ctx, data)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			e.logger.Warn().Err(cerr).Msg("Failed to close document")
		}
	}()

	sections, err := e.Sections(ctx, doc)
	if err != nil {
		return nil, err
	}

	images, err := e.Images(ctx, doc)
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Int("pages", doc.PageCount()).
		Int("images", len(images)).
		Bool("abstract", sections.Abstract != "").
		Bool("conclusion", sections.Conclusion != "").
		Dur("elapsed", time.Since(startTime)).
		Msg("Extraction complete")

	return &Content{Sections: sections, Images: images}, nil
}

// Sections concatenates the page texts and locates the abstract and conclusion.
// Missing markers yield empty sections; unreadable pages contribute no text.
func (e *Extractor) Sections(ctx context.Context, doc domain.Document) (domain.ExtractionResult, error) {
	var text strings.Builder

	for i := 0; i < doc.PageCount(); i++ {
		select {
		case <-ctx.Done():
			return domain.ExtractionResult{}, domain.CancelledError("extraction cancelled", ctx.Err())
		default:
		}

		pageText, err := doc.PageText(i)
		if err != nil {
			e.logger.Warn().Int("page", i+1).Err(err).Msg("Page text unavailable")
			continue
		}
		text.WriteString(pageText)
	}

	result := FindSections(text.String())
	if result.Abstract == "" {
		e.logger.Warn().Msg("Abstract not found")
	}
	if result.Conclusion == "" {
		e.logger.Warn().Msg("Conclusion not found")
	}
	return result, nil
}

// Images returns every embedded image, pages in order and images in in-page
// order, each identified by (page, ordinal), both 1-based. A page whose
// images cannot be listed contributes none; an image that cannot be decoded
// fails extraction.
func (e *Extractor) Images(ctx context.Context, doc domain.Document) ([]domain.ImageAsset, error) {
	var assets []domain.ImageAsset

	for i := 0; i < doc.PageCount(); i++ {
		select {
		case <-ctx.Done():
			return nil, domain.CancelledError("extraction cancelled", ctx.Err())
		default:
		}

		raws, err := doc.PageImages(i)
		if errors.Is(err, domain.ErrUndecodableImage) {
			return nil, err
		}
		if err != nil {
			e.logger.Warn().Int("page", i+1).Err(err).Msg("Page images unavailable")
			continue
		}

		for j, raw := range raws {
			assets = append(assets, domain.ImageAsset{
				ID:     domain.ImageID{Page: i + 1, Ordinal: j + 1},
				Data:   raw.Data,
				Format: raw.Format,
				Width:  raw.Width,
				Height: raw.Height,
			})
		}
	}

	if len(assets) == 0 {
		return nil, domain.ErrNoImagesFound
	}

	e.logger.Debug().Int("images", len(assets)).Msg("Images located")
	return assets, nil
}

// FindSections applies the keyword heuristic to the full document text.
//
// The abstract runs from the first "abstract" to the next "introduction" and
// is empty when no introduction follows. The conclusion runs from the first
// "conclusion" to the next "references", or to the end of the text.
func FindSections(text string) domain.ExtractionResult {
	lower := asciiLower(text)
	var result domain.ExtractionResult

	if start := strings.Index(lower, markerAbstract); start != -1 {
		if end := strings.Index(lower[start:], markerIntroduction); end != -1 {
			result.Abstract = strings.TrimSpace(text[start : start+end])
		}
	}

	if start := strings.Index(lower, markerConclusion); start != -1 {
		if end := strings.Index(lower[start:], markerReferences); end != -1 {
			result.Conclusion = strings.TrimSpace(text[start : start+end])
		} else {
			result.Conclusion = strings.TrimSpace(text[start:])
		}
	}

	return result
}

// asciiLower lowercases ASCII letters only, so byte offsets match the input
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
