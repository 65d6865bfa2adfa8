package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spherical/paper-video/internal/config"
	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/observability"
	"github.com/spherical/paper-video/internal/pipeline"
)

// Runner runs one pipeline request
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*domain.VideoArtifact, error)
}

// RunLister lists recorded runs
type RunLister interface {
	List(ctx context.Context, limit int) ([]*domain.RunRecord, error)
}

// RunnerPool hands out runners, bounding the number of concurrent runs
type RunnerPool struct {
	runners chan Runner
}

// NewRunnerPool creates a pool of size runners built by newRunner
func NewRunnerPool(size int, newRunner func() Runner) *RunnerPool {
	if size <= 0 {
		size = 1
	}
	p := &RunnerPool{runners: make(chan Runner, size)}
	for i := 0; i < size; i++ {
		p.runners <- newRunner()
	}
	return p
}

// Acquire waits for a free runner
func (p *RunnerPool) Acquire(ctx context.Context) (Runner, error) {
	select {
	case r := <-p.runners:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a runner to the pool
func (p *RunnerPool) Release(r Runner) {
	p.runners <- r
}

// VideoHandler handles video generation requests.
type VideoHandler struct {
	logger *observability.Logger
	pool   *RunnerPool
	cfg    Config
}

// NewVideoHandler creates a new video handler.
func NewVideoHandler(logger *observability.Logger, pool *RunnerPool, cfg Config) *VideoHandler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}
	if cfg.OutputName == "" {
		cfg.OutputName = config.DefaultOutputName
	}
	return &VideoHandler{
		logger: logger,
		pool:   pool,
		cfg:    cfg,
	}
}

// Create handles POST /api/v1/videos. The PDF arrives either as the "file"
// field of a multipart form or as an application/pdf body; the response is
// the MP4 as an attachment.
func (h *VideoHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data, name, err := h.readUpload(w, r)
	if err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.As(err, &mbe):
			h.writeError(w, http.StatusRequestEntityTooLarge, "upload too large", err.Error())
		case errors.Is(err, errUnsupportedMedia):
			h.writeError(w, http.StatusUnsupportedMediaType, "expected multipart/form-data or application/pdf", "")
		default:
			h.writeError(w, http.StatusBadRequest, "invalid upload", err.Error())
		}
		return
	}

	runner, err := h.pool.Acquire(ctx)
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "server busy", err.Error())
		return
	}
	defer h.pool.Release(runner)

	out, err := os.CreateTemp(h.cfg.WorkDir, "paper-video-response-*.mp4")
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to stage video", err.Error())
		return
	}
	defer func() {
		out.Close()
		os.Remove(out.Name())
	}()

	artifact, err := runner.Run(ctx, pipeline.Request{
		Document: data,
		Name:     name,
		Output:   out,
	})
	if err != nil {
		status, msg := statusFor(err)
		h.logger.Warn().Str("source", name).Int("status", status).Err(err).Msg("Video generation failed")
		h.writeError(w, status, msg, err.Error())
		return
	}

	if _, err := out.Seek(0, io.SeekStart); err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to read video", err.Error())
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": h.cfg.OutputName}))
	w.Header().Set("X-Run-Id", artifact.RunID)
	w.Header().Set("X-Video-Segments", strconv.Itoa(len(artifact.Segments)))
	http.ServeContent(w, r, h.cfg.OutputName, time.Now(), out)
}

var errUnsupportedMedia = errors.New("unsupported media type")

func (h *VideoHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, "", errUnsupportedMedia
	}

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
			return nil, "", err
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", err
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		return data, header.Filename, err
	case "application/pdf":
		data, err := io.ReadAll(r.Body)
		return data, "upload.pdf", err
	default:
		return nil, "", errUnsupportedMedia
	}
}

// statusFor maps pipeline failures to HTTP statuses
func statusFor(err error) (int, string) {
	if errors.Is(err, pipeline.ErrRunInProgress) {
		return http.StatusServiceUnavailable, "server busy"
	}
	var de *domain.DomainError
	if !errors.As(err, &de) {
		return http.StatusInternalServerError, "video generation failed"
	}
	switch de.Type {
	case domain.ErrorTypeValidation:
		return http.StatusBadRequest, "invalid document"
	case domain.ErrorTypeNoImages:
		return http.StatusUnprocessableEntity, "no images found in document"
	case domain.ErrorTypeExtraction:
		return http.StatusUnprocessableEntity, "document could not be read"
	case domain.ErrorTypeExplanation:
		return http.StatusBadGateway, "figure explanation failed"
	case domain.ErrorTypeCancelled:
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "video generation failed"
	}
}

func (h *VideoHandler) writeError(w http.ResponseWriter, status int, message, detail string) {
	writeError(w, status, message, detail)
}

// RunsHandler serves the run history.
type RunsHandler struct {
	logger *observability.Logger
	runs   RunLister
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(logger *observability.Logger, runs RunLister) *RunsHandler {
	return &RunsHandler{logger: logger, runs: runs}
}

// List handles GET /api/v1/runs?limit=N.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusNotFound, "run history is disabled", "")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = n
	}

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs", err.Error())
		return
	}
	if runs == nil {
		runs = []*domain.RunRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"runs": runs})
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	json.NewEncoder(w).Encode(resp)
}
