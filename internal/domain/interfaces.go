package domain

import (
	"context"
	"image"
	"image/color"
	"io"
)

// DocumentParser opens a source document from its bytes
type DocumentParser interface {
	Open(ctx context.Context, data []byte) (Document, error)
}

// Document is a parsed source file. Page indexes are 0-based.
type Document interface {
	PageCount() int
	PageText(index int) (string, error)
	// PageImages returns the page's embedded images in in-page ordinal order
	PageImages(index int) ([]RawImage, error)
	Close() error
}

// ExplanationService explains a figure. Retryable failures are wrapped with
// Transient.
type ExplanationService interface {
	Explain(ctx context.Context, img ImageAsset, contextText string) (string, error)
}

// SpeechSynthesizer converts text to narration audio. The returned duration
// is authoritative for the segment length.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, locale string) (Narration, error)
}

// FrameRenderer renders word-wrapped text into a raster of the given size
type FrameRenderer interface {
	Render(text string, size image.Point, fontSize float64, fg, bg color.Color) (image.Image, error)
}

// VideoEncoder encodes ordered clips into one video written to dst
type VideoEncoder interface {
	Encode(ctx context.Context, clips []Clip, params EncodingParams, dst io.Writer) error
}

// ProgressSink receives fire-and-forget progress updates
type ProgressSink interface {
	Report(fraction float64, message string)
}

// StageSink is a ProgressSink that is also told when a run enters a new
// stage. Sinks without Stage only receive Report calls.
type StageSink interface {
	ProgressSink
	Stage(stage EventType, message string)
}

// ProgressFunc adapts a function to ProgressSink
type ProgressFunc func(fraction float64, message string)

// Report calls f
func (f ProgressFunc) Report(fraction float64, message string) {
	f(fraction, message)
}
