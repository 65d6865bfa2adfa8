package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/pipeline"
)

type stubRunner struct {
	err  error
	got  pipeline.Request
	runs int
}

func (s *stubRunner) Run(ctx context.Context, req pipeline.Request) (*domain.VideoArtifact, error) {
	s.runs++
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	req.Output.Write([]byte("mp4-data"))
	return &domain.VideoArtifact{RunID: "run-1", Segments: make([]domain.SegmentSummary, 3), Bytes: 8}, nil
}

type stubLister struct {
	runs  []*domain.RunRecord
	limit int
}

func (s *stubLister) List(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	s.limit = limit
	return s.runs, nil
}

func newServer(t *testing.T, runner *stubRunner, runs RunLister) *httptest.Server {
	t.Helper()
	pool := NewRunnerPool(1, func() Runner { return runner })
	srv := httptest.NewServer(NewRouter(nil, pool, runs, Config{MaxUploadBytes: 1024, WorkDir: t.TempDir()}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newServer(t, &stubRunner{}, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateVideo_Multipart(t *testing.T) {
	runner := &stubRunner{}
	srv := newServer(t, runner, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "paper.pdf")
	require.NoError(t, err)
	fw.Write([]byte("%PDF-1.7 test"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/v1/videos", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "research_explanation.mp4")
	assert.Equal(t, "run-1", resp.Header.Get("X-Run-Id"))
	assert.Equal(t, "3", resp.Header.Get("X-Video-Segments"))

	var got bytes.Buffer
	got.ReadFrom(resp.Body)
	assert.Equal(t, "mp4-data", got.String())
	assert.Equal(t, "paper.pdf", runner.got.Name)
	assert.Equal(t, []byte("%PDF-1.7 test"), runner.got.Document)
}

func TestCreateVideo_RawPDF(t *testing.T) {
	runner := &stubRunner{}
	srv := newServer(t, runner, nil)

	resp, err := http.Post(srv.URL+"/api/v1/videos", "application/pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, runner.runs)
}

func TestCreateVideo_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        int
	}{
		{name: "unsupported type", contentType: "text/plain", body: "hi", want: http.StatusUnsupportedMediaType},
		{name: "missing type", contentType: "", body: "hi", want: http.StatusUnsupportedMediaType},
		{name: "too large", contentType: "application/pdf", body: strings.Repeat("x", 2048), want: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{}
			srv := newServer(t, runner, nil)

			req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/videos", strings.NewReader(tt.body))
			require.NoError(t, err)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Zero(t, runner.runs)
		})
	}
}

func TestCreateVideo_PipelineErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNoImagesFound, http.StatusUnprocessableEntity},
		{domain.ValidationError("not a PDF", nil), http.StatusBadRequest},
		{domain.ExplanationError("explain page 1 image 1", nil), http.StatusBadGateway},
		{domain.EncodingError("encode video", nil), http.StatusInternalServerError},
		{pipeline.ErrRunInProgress, http.StatusServiceUnavailable},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			srv := newServer(t, &stubRunner{err: tt.err}, nil)

			resp, err := http.Post(srv.URL+"/api/v1/videos", "application/pdf", strings.NewReader("%PDF-1.4"))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.want, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
			assert.Contains(t, body["detail"], tt.err.Error())
		})
	}
}

func TestListRuns(t *testing.T) {
	lister := &stubLister{runs: []*domain.RunRecord{{ID: "r1", Status: domain.RunCompleted}}}
	srv := newServer(t, &stubRunner{}, lister)

	resp, err := http.Get(srv.URL + "/api/v1/runs?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Runs []domain.RunRecord `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "r1", body.Runs[0].ID)
	assert.Equal(t, 5, lister.limit)

	bad, err := http.Get(srv.URL + "/api/v1/runs?limit=zero")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestListRuns_Disabled(t *testing.T) {
	srv := newServer(t, &stubRunner{}, nil)

	resp, err := http.Get(srv.URL + "/api/v1/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunnerPool(t *testing.T) {
	pool := NewRunnerPool(1, func() Runner { return &stubRunner{} })
	r, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	pool.Release(r)
	_, err = pool.Acquire(context.Background())
	assert.NoError(t, err)
}
