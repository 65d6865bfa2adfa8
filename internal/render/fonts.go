package render

import (
	"fmt"
	"os"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"

	"github.com/spherical/paper-video/internal/observability"
)

// FontSource loads a TrueType font once and hands out faces by size.
// An unreadable or unparsable font file falls back to Go Bold.
type FontSource struct {
	path   string
	logger *observability.Logger

	once     sync.Once
	font     *truetype.Font
	fallback bool
}

// NewFontSource creates a font source for the TTF at path. An empty path
// selects the embedded fallback font directly.
func NewFontSource(path string, logger *observability.Logger) *FontSource {
	if logger == nil {
		logger = observability.Nop()
	}
	return &FontSource{path: path, logger: logger}
}

// Face returns a new face at the given point size. Faces are not safe for
// concurrent use, so each render gets its own.
func (s *FontSource) Face(size float64) font.Face {
	s.once.Do(s.load)
	return truetype.NewFace(s.font, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}

// UsingFallback reports whether the embedded font replaced the configured one
func (s *FontSource) UsingFallback() bool {
	s.once.Do(s.load)
	return s.fallback
}

func (s *FontSource) load() {
	if s.path != "" {
		f, err := parseFontFile(s.path)
		if err == nil {
			s.font = f
			return
		}
		s.logger.Warn().Str("font", s.path).Err(err).Msg("Caption font unavailable, using embedded Go Bold")
	}

	f, err := truetype.Parse(gobold.TTF)
	if err != nil {
		// the embedded font is a compile-time asset
		panic(fmt.Sprintf("parse embedded font: %v", err))
	}
	s.font = f
	s.fallback = true
}

func parseFontFile(path string) (*truetype.Font, error) {
	fontBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsed, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return parsed, nil
}
