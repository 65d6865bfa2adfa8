// Package papervideo turns research papers into narrated explainer videos.
package papervideo

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"time"

	"github.com/spherical/paper-video/internal/cache"
	"github.com/spherical/paper-video/internal/config"
	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/extract"
	"github.com/spherical/paper-video/internal/llm"
	"github.com/spherical/paper-video/internal/observability"
	"github.com/spherical/paper-video/internal/pdf"
	"github.com/spherical/paper-video/internal/pipeline"
	"github.com/spherical/paper-video/internal/render"
	"github.com/spherical/paper-video/internal/segment"
	"github.com/spherical/paper-video/internal/speech"
	"github.com/spherical/paper-video/internal/storage"
	"github.com/spherical/paper-video/internal/video"
)

// Re-export event types for public API
type (
	StreamEvent   = domain.StreamEvent
	EventType     = domain.EventType
	VideoArtifact = domain.VideoArtifact
	RunRecord     = domain.RunRecord
	Config        = config.Config
)

// Event type constants
const (
	EventStart      = domain.EventStart
	EventExtracting = domain.EventExtracting
	EventExplaining = domain.EventExplaining
	EventAssembling = domain.EventAssembling
	EventProgress   = domain.EventProgress
	EventError      = domain.EventError
	EventComplete   = domain.EventComplete
)

// Client is the main entry point for the paper-video library
type Client struct {
	cfg       *config.Config
	logger    *observability.Logger
	validator *pdf.Validator
	explainer domain.ExplanationService
	speech    domain.SpeechSynthesizer
	fonts     *render.FontSource
	cache     cache.Client
	db        *sql.DB
	history   *storage.RunRepository

	streamBuffer int
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger used by every component
func WithLogger(logger *observability.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient wires the pipeline collaborators from cfg. A nil cfg loads the
// defaults with environment overrides.
func NewClient(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		loaded, err := config.Load("")
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	c := &Client{cfg: cfg, streamBuffer: 100}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = observability.NewLogger(observability.LogConfig{
			Level:  cfg.Observability.LogLevel,
			Format: cfg.Observability.LogFormat,
		})
	}

	if cfg.Explanation.APIKey == "" {
		return nil, domain.ConfigError("OPENROUTER_API_KEY not set", nil)
	}

	c.validator = pdf.NewValidator(c.logger)
	c.fonts = render.NewFontSource(cfg.Captions.FontPath, c.logger)

	synth, err := speech.New(speech.Options{
		Backend:     cfg.Narration.Backend,
		BaseURL:     cfg.Narration.BaseURL,
		APIKey:      cfg.Narration.APIKey,
		Model:       cfg.Narration.Model,
		Voice:       cfg.Narration.Voice,
		Timeout:     cfg.Narration.Timeout,
		EspeakPath:  cfg.Narration.EspeakPath,
		FFprobePath: cfg.Video.FFprobePath,
		WorkDir:     cfg.WorkDir,
	}, c.logger)
	if err != nil {
		return nil, err
	}
	c.speech = synth

	cacheClient, err := cache.New(cache.Options{
		Driver: cfg.Cache.Driver,
		Redis: cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			PoolSize: cfg.Cache.Redis.PoolSize,
		},
	})
	if err != nil {
		return nil, domain.ConfigError("failed to connect explanation cache", err)
	}
	c.cache = cacheClient

	llmClient := llm.NewClient(llm.Config{
		BaseURL:     cfg.Explanation.BaseURL,
		APIKey:      cfg.Explanation.APIKey,
		Model:       cfg.Explanation.Model,
		Temperature: cfg.Explanation.Temperature,
		MaxTokens:   cfg.Explanation.MaxTokens,
		Timeout:     cfg.Explanation.Timeout,
		Stream:      cfg.Explanation.Stream,
	}, c.logger)
	c.explainer = llmClient
	if c.cache != nil {
		c.explainer = llm.NewCachedExplainer(llmClient, c.cache, llmClient.Model(), cfg.Cache.TTL, c.logger)
	}

	if cfg.History.Driver != "" && cfg.History.Driver != "none" {
		db, err := storage.Open(ctx, cfg.History.Driver, cfg.HistoryDSN())
		if err != nil {
			c.Close()
			return nil, domain.ConfigError("failed to open run history", err)
		}
		c.db = db
		c.history = storage.NewRunRepository(db)
	}

	return c, nil
}

// Config returns the client configuration
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Logger returns the client logger
func (c *Client) Logger() *observability.Logger {
	return c.logger
}

// History returns the run repository, or nil when history is disabled
func (c *Client) History() *storage.RunRepository {
	return c.history
}

// NewOrchestrator builds a pipeline orchestrator over the shared
// collaborators. Each orchestrator runs one document at a time.
func (c *Client) NewOrchestrator() *pipeline.Orchestrator {
	cfg := c.cfg
	params := cfg.EncodingParams()

	parser := pdf.NewParser(cfg.WorkDir, c.logger)
	extractor := extract.NewExtractor(parser, c.logger)

	geometry := segment.NewGeometry(params, segment.FontSizes{
		Body:    cfg.Captions.BodyFontSize,
		Title:   cfg.Captions.TitleFontSize,
		Caption: cfg.Captions.CaptionFontSize,
	})
	synthesizer := segment.NewSynthesizer(c.speech, render.NewCaptionRenderer(c.fonts), geometry, cfg.Narration.Locale, c.logger)

	encoder := video.NewFFmpegEncoder(cfg.Video.FFmpegPath, cfg.WorkDir, cfg.Video.Preset, c.logger)
	assembler := video.NewAssembler(encoder, c.logger)

	var opts []pipeline.Option
	if c.history != nil {
		opts = append(opts, pipeline.WithRecorder(c.history))
	}

	return pipeline.NewOrchestrator(extractor, c.explainer, synthesizer, assembler, pipeline.Config{
		Params: params,
		Retry: pipeline.RetryConfig{
			MaxRetries:     cfg.Explanation.MaxRetries,
			InitialBackoff: cfg.Explanation.InitialBackoff,
			MaxBackoff:     cfg.Explanation.MaxBackoff,
		},
		MaxConcurrency:      cfg.Explanation.MaxConcurrency,
		OnFailure:           cfg.Explanation.OnFailure,
		ContextFromAbstract: cfg.Explanation.ContextFromAbstract,
		ContextMaxRunes:     cfg.Explanation.ContextMaxRunes,
		WorkDir:             cfg.WorkDir,
	}, c.logger, opts...)
}

// Generate turns the PDF at pdfPath into a video written to dst
func (c *Client) Generate(ctx context.Context, pdfPath string, dst io.Writer, progress domain.ProgressSink) (*VideoArtifact, error) {
	data, err := c.validator.ReadPDF(pdfPath)
	if err != nil {
		return nil, err
	}
	return c.NewOrchestrator().Run(ctx, pipeline.Request{
		Document: data,
		Name:     pdfPath,
		Output:   dst,
		Progress: progress,
	})
}

// Stream runs Generate in the background and streams its progress and stage
// events. The channel ends with an EventComplete carrying the *VideoArtifact
// or an EventError carrying the error text, and is then closed. Once ctx is
// done, events nobody receives are dropped so the channel still closes.
func (c *Client) Stream(ctx context.Context, pdfPath string, dst io.Writer) (<-chan StreamEvent, error) {
	if _, err := os.Stat(pdfPath); err != nil {
		return nil, domain.ValidationError("PDF file not found", err)
	}

	eventCh := make(chan StreamEvent, c.streamBuffer)
	send := func(ev StreamEvent) bool {
		select {
		case eventCh <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(eventCh)
		if !send(StreamEvent{Type: EventStart, Message: pdfPath, Timestamp: time.Now()}) {
			return
		}

		artifact, err := c.Generate(ctx, pdfPath, dst, pipeline.NewChannelSink(eventCh))
		if err != nil {
			send(StreamEvent{Type: EventError, Message: err.Error(), Payload: err.Error(), Timestamp: time.Now()})
			return
		}
		send(StreamEvent{Type: EventComplete, Fraction: 1, Payload: artifact, Timestamp: time.Now()})
	}()

	return eventCh, nil
}

// ClearCache drops every cached explanation
func (c *Client) ClearCache(ctx context.Context) error {
	if c.cache == nil {
		return errors.New("explanation cache is disabled")
	}
	return c.cache.DeleteByPrefix(ctx, llm.CacheKeyPrefix)
}

// Close releases the cache and database connections
func (c *Client) Close() error {
	var errs []error
	if c.cache != nil {
		errs = append(errs, c.cache.Close())
	}
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	return errors.Join(errs...)
}
