// Package segment builds duration-locked narrated segments.
package segment

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"

	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/observability"
	"github.com/spherical/paper-video/internal/render"
)

// Synthesizer turns text sections and explained figures into segments.
// Every segment lasts exactly as long as its narration.
type Synthesizer struct {
	speech   domain.SpeechSynthesizer
	renderer domain.FrameRenderer
	geometry Geometry
	locale   string
	logger   *observability.Logger
}

// NewSynthesizer creates a segment synthesizer
func NewSynthesizer(speech domain.SpeechSynthesizer, renderer domain.FrameRenderer, geometry Geometry, locale string, logger *observability.Logger) *Synthesizer {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Synthesizer{
		speech:   speech,
		renderer: renderer,
		geometry: geometry,
		locale:   locale,
		logger:   logger,
	}
}

// BuildTitled builds a text segment: the narrated text drawn over the whole
// frame with its title on top.
func (s *Synthesizer) BuildTitled(ctx context.Context, kind domain.SegmentKind, text, title string) (*domain.Segment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.SynthesisError("segment text is empty", nil)
	}

	narration, err := s.narrate(ctx, text)
	if err != nil {
		return nil, err
	}

	g := s.geometry
	body, err := s.caption(text, g.Frame, g.Fonts.Body)
	if err != nil {
		return nil, err
	}
	titleImg, err := s.caption(title, image.Pt(g.Frame.X, g.TitleHeight), g.Fonts.Title)
	if err != nil {
		return nil, err
	}

	seg := &domain.Segment{
		Kind:      kind,
		Title:     title,
		Caption:   text,
		Narration: narration,
		Frame:     render.TitledFrame(g.Frame, body, titleImg, g.TitleTop),
		Duration:  narration.Duration,
	}

	s.logger.Debug().Str("kind", string(kind)).Dur("duration", seg.Duration).Msg("Segment built")
	return seg, nil
}

// BuildImage builds a figure segment: the figure centred in the frame with
// its explanation as caption.
func (s *Synthesizer) BuildImage(ctx context.Context, asset domain.ImageAsset, explanation string) (*domain.Segment, error) {
	explanation = strings.TrimSpace(explanation)
	if explanation == "" {
		return nil, domain.SynthesisError("explanation is empty", nil).WithImage(asset.ID)
	}

	figure, err := render.DecodeImage(asset.Data)
	if err != nil {
		return nil, domain.SynthesisError("decode figure", err).WithImage(asset.ID)
	}

	narration, err := s.narrate(ctx, explanation)
	if err != nil {
		var de *domain.DomainError
		if errors.As(err, &de) && de.Image == nil {
			de.WithImage(asset.ID)
		}
		return nil, err
	}

	g := s.geometry
	caption, err := s.caption(explanation, image.Pt(g.Frame.X, g.CaptionHeight), g.Fonts.Caption)
	if err != nil {
		return nil, domain.SynthesisError("render caption", err).WithImage(asset.ID)
	}

	id := asset.ID
	seg := &domain.Segment{
		Kind:      domain.SegmentImageExplanation,
		Caption:   explanation,
		Image:     &id,
		Narration: narration,
		Frame:     render.FigureFrame(g.Frame, figure, g.ImageHeight, caption, g.CaptionTop),
		Duration:  narration.Duration,
	}

	s.logger.Debug().Stringer("image", id).Dur("duration", seg.Duration).Msg("Segment built")
	return seg, nil
}

func (s *Synthesizer) narrate(ctx context.Context, text string) (domain.Narration, error) {
	n, err := s.speech.Synthesize(ctx, text, s.locale)
	if err != nil {
		if domain.IsType(err, domain.ErrorTypeCancelled) || domain.IsType(err, domain.ErrorTypeSynthesis) {
			return domain.Narration{}, err
		}
		return domain.Narration{}, domain.SynthesisError("synthesize narration", err)
	}
	if n.Duration <= 0 {
		return domain.Narration{}, domain.SynthesisError("narration has no duration", nil)
	}
	return n, nil
}

func (s *Synthesizer) caption(text string, size image.Point, fontSize float64) (image.Image, error) {
	return s.renderer.Render(text, size, fontSize, color.White, color.Transparent)
}
