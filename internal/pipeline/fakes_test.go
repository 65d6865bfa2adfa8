package pipeline

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/extract"
)

type fakeExtractor struct {
	content *extract.Content
	err     error
	block   chan struct{}
}

func (f *fakeExtractor) Extract(ctx context.Context, data []byte) (*extract.Content, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.content, nil
}

// fakeExplainer answers "explained <page>/<ordinal>". Per-image behaviour is
// configured by identity.
type fakeExplainer struct {
	mu        sync.Mutex
	calls     atomic.Int32
	delays    map[domain.ImageID]time.Duration
	permanent map[domain.ImageID]bool
	// transient failures left before the image succeeds
	transient map[domain.ImageID]int
	contexts  []string
	onCall    func(ctx context.Context)
}

func (f *fakeExplainer) Explain(ctx context.Context, img domain.ImageAsset, contextText string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.contexts = append(f.contexts, contextText)
	delay := f.delays[img.ID]
	permanent := f.permanent[img.ID]
	transient := false
	if f.transient[img.ID] > 0 {
		f.transient[img.ID]--
		transient = true
	}
	onCall := f.onCall
	f.mu.Unlock()

	if onCall != nil {
		onCall(ctx)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", domain.CancelledError("cancelled", ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return "", domain.CancelledError("cancelled", err)
	}
	if permanent {
		return "", domain.ExplanationError("API returned status 400", nil)
	}
	if transient {
		return "", domain.Transient(domain.ExplanationError("API returned status 503", nil))
	}
	return "explained " + img.ID.String(), nil
}

type fakeBuilder struct {
	mu       sync.Mutex
	built    []*domain.Segment
	failKind domain.SegmentKind
}

func (f *fakeBuilder) newSegment(kind domain.SegmentKind, caption string) *domain.Segment {
	seg := &domain.Segment{
		Kind:      kind,
		Caption:   caption,
		Narration: domain.Narration{Audio: []byte(caption), Format: "wav", Duration: time.Second},
		Frame:     image.NewRGBA(image.Rect(0, 0, 8, 6)),
		Duration:  time.Second,
	}
	f.mu.Lock()
	f.built = append(f.built, seg)
	f.mu.Unlock()
	return seg
}

func (f *fakeBuilder) BuildTitled(ctx context.Context, kind domain.SegmentKind, text, title string) (*domain.Segment, error) {
	if kind == f.failKind {
		return nil, domain.SynthesisError("tts failed", nil)
	}
	seg := f.newSegment(kind, text)
	seg.Title = title
	return seg, nil
}

func (f *fakeBuilder) BuildImage(ctx context.Context, asset domain.ImageAsset, explanation string) (*domain.Segment, error) {
	if f.failKind == domain.SegmentImageExplanation {
		return nil, domain.SynthesisError("tts failed", nil).WithImage(asset.ID)
	}
	seg := f.newSegment(domain.SegmentImageExplanation, explanation)
	id := asset.ID
	seg.Image = &id
	return seg, nil
}

type fakeAssembler struct {
	calls      int
	segments   []domain.SegmentSummary
	scratchDir string
	err        error
}

func (f *fakeAssembler) Assemble(ctx context.Context, segments []*domain.Segment, params domain.EncodingParams, dst io.Writer) (*domain.VideoArtifact, error) {
	f.calls++
	f.segments = domain.Summaries(segments)
	f.scratchDir = domain.ScratchDir(ctx, "")
	if f.err != nil {
		return nil, f.err
	}
	n, err := dst.Write([]byte("video"))
	if err != nil {
		return nil, err
	}
	return &domain.VideoArtifact{Segments: f.segments, Params: params, Bytes: int64(n)}, nil
}

type recordedProgress struct {
	mu        sync.Mutex
	fractions []float64
	messages  []string
}

func (r *recordedProgress) Report(fraction float64, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fractions = append(r.fractions, fraction)
	r.messages = append(r.messages, message)
}

type memoryRecorder struct {
	runs []domain.RunRecord
	err  error
}

func (m *memoryRecorder) Record(ctx context.Context, run domain.RunRecord) error {
	m.runs = append(m.runs, run)
	return m.err
}

var errBoom = errors.New("boom")

func asset(page, ordinal int) domain.ImageAsset {
	return domain.ImageAsset{ID: domain.ImageID{Page: page, Ordinal: ordinal}, Data: []byte("png"), Format: "png"}
}

func content(abstract, conclusion string, images ...domain.ImageAsset) *extract.Content {
	return &extract.Content{
		Sections: domain.ExtractionResult{Abstract: abstract, Conclusion: conclusion},
		Images:   images,
	}
}
