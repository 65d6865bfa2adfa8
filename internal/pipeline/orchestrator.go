// Package pipeline drives a document through extraction, explanation,
// segment synthesis and video assembly.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/extract"
	"github.com/spherical/paper-video/internal/observability"
)

// ErrRunInProgress is returned when Run is called while another run is active
var ErrRunInProgress = errors.New("a run is already in progress")

// Failure policies for images that cannot be explained.
const (
	OnFailureAbort = "abort"
	OnFailureSkip  = "skip"
)

// Progress messages shown to the user.
const (
	msgAnalyzing  = "Analyzing image %d/%d..."
	msgGenerating = "Generating video..."
	msgComplete   = "Video generation complete!"

	msgExtracting = "Extracting sections and images"
	msgExplaining = "Explaining %d images"
	msgAssembling = "Assembling %d segments"
)

// State is the orchestrator's position in the run state machine
type State string

const (
	StateIdle       State = "idle"
	StateExtracting State = "extracting"
	StateExplaining State = "explaining"
	StateAssembling State = "assembling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// ContentExtractor pulls sections and images out of a document
type ContentExtractor interface {
	Extract(ctx context.Context, data []byte) (*extract.Content, error)
}

// SegmentBuilder builds duration-locked segments
type SegmentBuilder interface {
	BuildTitled(ctx context.Context, kind domain.SegmentKind, text, title string) (*domain.Segment, error)
	BuildImage(ctx context.Context, asset domain.ImageAsset, explanation string) (*domain.Segment, error)
}

// VideoAssembler encodes ordered segments into the output
type VideoAssembler interface {
	Assemble(ctx context.Context, segments []*domain.Segment, params domain.EncodingParams, dst io.Writer) (*domain.VideoArtifact, error)
}

// RunRecorder stores a history entry for every finished run
type RunRecorder interface {
	Record(ctx context.Context, run domain.RunRecord) error
}

// Config holds orchestrator configuration
type Config struct {
	Params         domain.EncodingParams
	Retry          RetryConfig
	MaxConcurrency int
	OnFailure      string
	// ContextFromAbstract passes the abstract to the explanation service
	ContextFromAbstract bool
	ContextMaxRunes     int
	WorkDir             string
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		Params:          domain.DefaultEncodingParams(),
		Retry:           DefaultRetryConfig(),
		MaxConcurrency:  2,
		OnFailure:       OnFailureAbort,
		ContextMaxRunes: 1000,
	}
}

// Request is one document to turn into a video
type Request struct {
	Document []byte
	// Name identifies the source in logs and run history
	Name     string
	Output   io.Writer
	Progress domain.ProgressSink
}

// Orchestrator runs the pipeline. It allows one run at a time.
type Orchestrator struct {
	extractor ContentExtractor
	explainer domain.ExplanationService
	segments  SegmentBuilder
	assembler VideoAssembler
	recorder  RunRecorder
	config    Config
	logger    *observability.Logger

	running atomic.Bool
	mu      sync.RWMutex
	state   State
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithRecorder stores a history entry for every run
func WithRecorder(r RunRecorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(
	extractor ContentExtractor,
	explainer domain.ExplanationService,
	segments SegmentBuilder,
	assembler VideoAssembler,
	cfg Config,
	logger *observability.Logger,
	opts ...Option,
) *Orchestrator {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.OnFailure == "" {
		cfg.OnFailure = OnFailureAbort
	}
	if logger == nil {
		logger = observability.Nop()
	}

	o := &Orchestrator{
		extractor: extractor,
		explainer: explainer,
		segments:  segments,
		assembler: assembler,
		config:    cfg,
		logger:    logger,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// Run turns the document into a video written to req.Output
func (o *Orchestrator) Run(ctx context.Context, req Request) (*domain.VideoArtifact, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer o.running.Store(false)

	runID := uuid.NewString()
	ctx = observability.ContextWithRunID(ctx, runID)
	logger := o.logger.WithRun(runID)
	startTime := time.Now()

	logger.Info().Str("source", req.Name).Int("bytes", len(req.Document)).Msg("Starting run")

	r := &run{
		Orchestrator: o,
		logger:       logger,
		progress:     newProgress(req.Progress),
	}
	artifact, err := r.execute(ctx, req)

	record := domain.RunRecord{
		ID:         runID,
		Source:     req.Name,
		Images:     r.images,
		StartedAt:  startTime,
		FinishedAt: time.Now(),
	}
	if err != nil {
		o.setState(StateFailed)
		record.Status = domain.RunFailed
		record.Error = err.Error()
		logger.Error().Err(err).Dur("elapsed", time.Since(startTime)).Msg("Run failed")
	} else {
		o.setState(StateCompleted)
		artifact.RunID = runID
		record.Status = domain.RunCompleted
		record.Segments = len(artifact.Segments)
		record.Bytes = artifact.Bytes
		record.Duration = artifact.Duration
		logger.Info().
			Int("segments", len(artifact.Segments)).
			Int64("bytes", artifact.Bytes).
			Dur("elapsed", time.Since(startTime)).
			Msg("Run completed")
	}
	o.record(ctx, record)

	if err != nil {
		return nil, err
	}
	return artifact, nil
}

func (o *Orchestrator) record(ctx context.Context, rec domain.RunRecord) {
	if o.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.recorder.Record(ctx, rec); err != nil {
		o.logger.Warn().Str("run_id", rec.ID).Err(err).Msg("Failed to record run")
	}
}

// run holds the state of a single execution
type run struct {
	*Orchestrator
	logger   *observability.Logger
	progress *progress
	images   int
}

// enter moves the state machine and tells stage-aware sinks
func (r *run) enter(s State, message string) {
	r.setState(s)
	if ev, ok := stageEvents[s]; ok {
		r.progress.stage(ev, message)
	}
}

var stageEvents = map[State]domain.EventType{
	StateExtracting: domain.EventExtracting,
	StateExplaining: domain.EventExplaining,
	StateAssembling: domain.EventAssembling,
}

func (r *run) execute(ctx context.Context, req Request) (*domain.VideoArtifact, error) {
	if len(req.Document) == 0 {
		return nil, domain.ValidationError("document is empty", nil)
	}
	if req.Output == nil {
		return nil, domain.ValidationError("output writer is required", nil)
	}

	scratch, err := os.MkdirTemp(r.config.WorkDir, "paper-video-run-*")
	if err != nil {
		return nil, domain.IOError("create run scratch directory", err)
	}
	defer func() {
		if rerr := os.RemoveAll(scratch); rerr != nil {
			r.logger.Warn().Str("dir", scratch).Err(rerr).Msg("Failed to remove scratch directory")
		}
	}()
	ctx = domain.WithScratchDir(ctx, scratch)

	// Extracting
	r.enter(StateExtracting, msgExtracting)
	content, err := r.extractor.Extract(ctx, req.Document)
	if err != nil {
		return nil, err
	}
	r.images = len(content.Images)
	if r.images == 0 {
		return nil, domain.ErrNoImagesFound
	}
	if err := checkCancelled(ctx, "extracting"); err != nil {
		return nil, err
	}

	// Explaining
	r.enter(StateExplaining, fmt.Sprintf(msgExplaining, r.images))
	explanations, err := r.explainAll(ctx, content)
	if err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx, "explaining"); err != nil {
		return nil, err
	}

	// Assembling
	r.enter(StateAssembling, fmt.Sprintf(msgAssembling, len(explanations)+sectionCount(content.Sections)))
	r.progress.report(float64(r.images+1)/float64(r.images+2), msgGenerating)

	segments, err := r.buildSegments(ctx, content, explanations)
	defer func() {
		for _, s := range segments {
			s.Release()
		}
	}()
	if err != nil {
		return nil, err
	}

	artifact, err := r.assembler.Assemble(ctx, segments, r.config.Params, req.Output)
	if err != nil {
		return nil, err
	}

	r.progress.report(1.0, msgComplete)
	return artifact, nil
}

// explainAll explains every image with bounded concurrency and returns the
// results in extraction order.
func (r *run) explainAll(ctx context.Context, content *extract.Content) ([]domain.Explanation, error) {
	images := content.Images
	n := len(images)
	contextText := r.explanationContext(content.Sections.Abstract)

	results := make(chan domain.Explanation, n)
	var failed atomic.Int32
	var lastFailure atomic.Value

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.MaxConcurrency)

	for _, img := range images {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			text, err := retryWithBackoff(gctx, r.config.Retry, r.logger, func() (string, error) {
				return r.explainer.Explain(gctx, img, contextText)
			})
			if err != nil {
				if gctx.Err() != nil {
					return domain.CancelledError("explanation cancelled", gctx.Err()).WithImage(img.ID)
				}
				ferr := domain.ExplanationError(fmt.Sprintf("explain %s", img.ID), err).
					WithStage("explaining").
					WithImage(img.ID)
				if r.config.OnFailure != OnFailureSkip {
					return ferr
				}
				failed.Add(1)
				lastFailure.Store(error(ferr))
				r.logger.Warn().Stringer("image", img.ID).Err(err).Msg("Skipping image")
			} else {
				results <- domain.Explanation{Image: img.ID, Text: text}
			}

			r.progress.imageDone(n)
			return nil
		})
	}

	err := g.Wait()
	close(results)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, domain.CancelledError("explanation cancelled", ctx.Err())
	}

	out := make([]domain.Explanation, 0, n)
	for e := range results {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Image.Less(out[j].Image)
	})

	if len(out) == 0 {
		cause, _ := lastFailure.Load().(error)
		return nil, domain.ExplanationError("no image could be explained", cause).WithStage("explaining")
	}
	if f := failed.Load(); f > 0 {
		r.logger.Warn().Int("skipped", int(f)).Int("explained", len(out)).Msg("Some images were skipped")
	}
	return out, nil
}

// buildSegments builds the abstract, one segment per explained image, and
// the conclusion, in that order. Built segments are returned on error so the
// caller can release them.
func (r *run) buildSegments(ctx context.Context, content *extract.Content, explanations []domain.Explanation) ([]*domain.Segment, error) {
	segments := make([]*domain.Segment, 0, len(explanations)+2)
	assets := make(map[domain.ImageID]domain.ImageAsset, len(content.Images))
	for _, img := range content.Images {
		assets[img.ID] = img
	}
	fail := func(err error) ([]*domain.Segment, error) {
		var de *domain.DomainError
		if errors.As(err, &de) && de.Segments == nil {
			de.WithSegments(domain.Summaries(segments))
		}
		return segments, err
	}

	titled := func(kind domain.SegmentKind, section domain.ExtractedSection) error {
		if !section.Found() {
			return nil
		}
		seg, err := r.segments.BuildTitled(ctx, kind, section.Text, section.Kind.Title())
		if err != nil {
			return err
		}
		segments = append(segments, seg)
		return nil
	}

	if err := titled(domain.SegmentAbstract, content.Sections.Section(domain.SectionAbstract)); err != nil {
		return fail(err)
	}

	for _, e := range explanations {
		if err := checkCancelled(ctx, "assembling"); err != nil {
			return fail(err)
		}
		seg, err := r.segments.BuildImage(ctx, assets[e.Image], e.Text)
		if err != nil {
			return fail(err)
		}
		segments = append(segments, seg)
	}

	if err := titled(domain.SegmentConclusion, content.Sections.Section(domain.SectionConclusion)); err != nil {
		return fail(err)
	}

	return segments, nil
}

func sectionCount(sections domain.ExtractionResult) int {
	n := 0
	for _, kind := range []domain.SectionKind{domain.SectionAbstract, domain.SectionConclusion} {
		if sections.Section(kind).Found() {
			n++
		}
	}
	return n
}

func (r *run) explanationContext(abstract string) string {
	if !r.config.ContextFromAbstract || abstract == "" {
		return ""
	}
	runes := []rune(abstract)
	if limit := r.config.ContextMaxRunes; limit > 0 && len(runes) > limit {
		return string(runes[:limit])
	}
	return abstract
}

func checkCancelled(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return domain.CancelledError("run cancelled", err).WithStage(stage)
	}
	return nil
}
