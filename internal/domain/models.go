package domain

import (
	"fmt"
	"image"
	"time"
)

// Default encoding parameters for the produced video.
const (
	DefaultFrameRate = 24
	DefaultWidth     = 800
	DefaultHeight    = 600
)

// SectionKind identifies a text section located by the extraction heuristic
type SectionKind string

const (
	SectionAbstract   SectionKind = "abstract"
	SectionConclusion SectionKind = "conclusion"
)

// Title returns the on-screen title used for the section's segment
func (k SectionKind) Title() string {
	switch k {
	case SectionAbstract:
		return "Abstract"
	case SectionConclusion:
		return "Conclusion"
	default:
		return string(k)
	}
}

// ExtractedSection is a located text section. Empty text means the marker
// was not found, which is a normal outcome.
type ExtractedSection struct {
	Kind SectionKind
	Text string
}

// Found reports whether the heuristic located any text for the section
func (s ExtractedSection) Found() bool {
	return s.Text != ""
}

// ExtractionResult holds both located sections of a document
type ExtractionResult struct {
	Abstract   string
	Conclusion string
}

// Section returns the named section
func (r ExtractionResult) Section(kind SectionKind) ExtractedSection {
	switch kind {
	case SectionAbstract:
		return ExtractedSection{Kind: kind, Text: r.Abstract}
	case SectionConclusion:
		return ExtractedSection{Kind: kind, Text: r.Conclusion}
	default:
		return ExtractedSection{Kind: kind}
	}
}

// ImageID identifies an embedded image by its 1-based page number and its
// 1-based ordinal within the page.
type ImageID struct {
	Page    int `json:"page"`
	Ordinal int `json:"ordinal"`
}

// Less orders identities page first, then ordinal
func (id ImageID) Less(other ImageID) bool {
	if id.Page != other.Page {
		return id.Page < other.Page
	}
	return id.Ordinal < other.Ordinal
}

func (id ImageID) String() string {
	return fmt.Sprintf("page %d image %d", id.Page, id.Ordinal)
}

// RawImage is an image as returned by a document parser for a single page
type RawImage struct {
	Data   []byte
	Format string // png, jpeg, ...
	Width  int
	Height int
}

// ImageAsset is an embedded figure with a stable identity
type ImageAsset struct {
	ID     ImageID
	Data   []byte
	Format string
	Width  int
	Height int
}

// Explanation is the narration text obtained for one image
type Explanation struct {
	Image ImageID
	Text  string
}

// SegmentKind identifies the role of a segment in the video
type SegmentKind string

const (
	SegmentAbstract         SegmentKind = "abstract"
	SegmentImageExplanation SegmentKind = "image_explanation"
	SegmentConclusion       SegmentKind = "conclusion"
)

// Narration is synthesized speech with its authoritative duration
type Narration struct {
	Audio    []byte
	Format   string // wav, mp3
	Duration time.Duration
}

// Segment is a duration-locked unit of narrated visual content.
// Duration always equals Narration.Duration; Frame is held for that long.
type Segment struct {
	Kind      SegmentKind
	Title     string
	Caption   string
	Image     *ImageID
	Narration Narration
	Frame     image.Image
	Duration  time.Duration
}

// Summary returns the segment metadata that survives Release
func (s *Segment) Summary() SegmentSummary {
	return SegmentSummary{
		Kind:     s.Kind,
		Title:    s.Title,
		Caption:  s.Caption,
		Image:    s.Image,
		Duration: s.Duration,
	}
}

// Release drops the frame and audio buffers held by the segment
func (s *Segment) Release() {
	s.Frame = nil
	s.Narration.Audio = nil
}

// SegmentSummary describes a segment without its media
type SegmentSummary struct {
	Kind     SegmentKind   `json:"kind"`
	Title    string        `json:"title,omitempty"`
	Caption  string        `json:"caption"`
	Image    *ImageID      `json:"image,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Summaries maps segments to their summaries, skipping nil entries
func Summaries(segments []*Segment) []SegmentSummary {
	out := make([]SegmentSummary, 0, len(segments))
	for _, s := range segments {
		if s == nil {
			continue
		}
		out = append(out, s.Summary())
	}
	return out
}

// EncodingParams controls the encoded video
type EncodingParams struct {
	FrameRate int `json:"frame_rate" yaml:"frame_rate"`
	Width     int `json:"width" yaml:"width"`
	Height    int `json:"height" yaml:"height"`
}

// DefaultEncodingParams returns 24 fps at 800x600
func DefaultEncodingParams() EncodingParams {
	return EncodingParams{
		FrameRate: DefaultFrameRate,
		Width:     DefaultWidth,
		Height:    DefaultHeight,
	}
}

// FrameInterval is the duration of one frame
func (p EncodingParams) FrameInterval() time.Duration {
	if p.FrameRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(p.FrameRate)
}

// Size returns the frame size as a point
func (p EncodingParams) Size() image.Point {
	return image.Pt(p.Width, p.Height)
}

// Validate checks the parameters are usable by an encoder
func (p EncodingParams) Validate() error {
	if p.FrameRate <= 0 {
		return ValidationError(fmt.Sprintf("frame rate must be positive, got %d", p.FrameRate), nil)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return ValidationError(fmt.Sprintf("frame size must be positive, got %dx%d", p.Width, p.Height), nil)
	}
	// yuv420p subsamples chroma 2x2, so libx264 needs even dimensions
	if p.Width%2 != 0 || p.Height%2 != 0 {
		return ValidationError(fmt.Sprintf("frame size must be even, got %dx%d", p.Width, p.Height), nil)
	}
	return nil
}

// Clip is a segment prepared for the encoder: one still frame held for
// FrameCount frames, with its own audio track.
type Clip struct {
	Index       int
	Frame       image.Image
	Audio       []byte
	AudioFormat string
	Duration    time.Duration
	FrameCount  int
}

// VisualDuration is the on-screen length of the clip at the given rate
func (c Clip) VisualDuration(frameRate int) time.Duration {
	if frameRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameCount) * time.Second / time.Duration(frameRate)
}

// VideoArtifact describes the encoded video delivered to the caller
type VideoArtifact struct {
	RunID    string           `json:"run_id,omitempty"`
	Segments []SegmentSummary `json:"segments"`
	Params   EncodingParams   `json:"params"`
	Bytes    int64            `json:"bytes"`
	Duration time.Duration    `json:"duration"`
}

// CountKind returns how many segments of the given kind the artifact holds
func (a *VideoArtifact) CountKind(kind SegmentKind) int {
	n := 0
	for _, s := range a.Segments {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// EventType represents the type of stream event
type EventType string

const (
	EventStart      EventType = "start"
	EventExtracting EventType = "extracting"
	EventExplaining EventType = "explaining"
	EventAssembling EventType = "assembling"
	EventProgress   EventType = "progress"
	EventError      EventType = "error"
	EventComplete   EventType = "complete"
)

// StreamEvent represents an event emitted during a run
type StreamEvent struct {
	Type      EventType   `json:"type"`
	Fraction  float64     `json:"fraction"`
	Message   string      `json:"message,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// RunStatus is the terminal status of a pipeline run
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunRecord is the history entry written when a run finishes
type RunRecord struct {
	ID         string        `json:"id"`
	Source     string        `json:"source"`
	Status     RunStatus     `json:"status"`
	Images     int           `json:"images"`
	Segments   int           `json:"segments"`
	Bytes      int64         `json:"bytes"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}
