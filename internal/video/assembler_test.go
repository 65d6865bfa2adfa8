package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/paper-video/internal/domain"
)

type recordingEncoder struct {
	clips  []domain.Clip
	params domain.EncodingParams
	out    []byte
	err    error
}

func (r *recordingEncoder) Encode(ctx context.Context, clips []domain.Clip, params domain.EncodingParams, dst io.Writer) error {
	r.clips = clips
	r.params = params
	if r.err != nil {
		return r.err
	}
	_, err := dst.Write(r.out)
	return err
}

func seg(kind domain.SegmentKind, d time.Duration, audio string) *domain.Segment {
	return &domain.Segment{
		Kind:      kind,
		Caption:   string(kind),
		Narration: domain.Narration{Audio: []byte(audio), Format: "wav", Duration: d},
		Frame:     image.NewRGBA(image.Rect(0, 0, 8, 6)),
		Duration:  d,
	}
}

func TestAssemble_OrderAndDurationLock(t *testing.T) {
	id := domain.ImageID{Page: 1, Ordinal: 1}
	img := seg(domain.SegmentImageExplanation, 1030*time.Millisecond, "b")
	img.Image = &id
	segments := []*domain.Segment{
		seg(domain.SegmentAbstract, 2*time.Second, "a"),
		img,
		seg(domain.SegmentConclusion, 500*time.Millisecond, "c"),
	}
	enc := &recordingEncoder{out: []byte("mp4-bytes")}
	a := NewAssembler(enc, nil)
	params := domain.DefaultEncodingParams()

	var buf bytes.Buffer
	artifact, err := a.Assemble(context.Background(), segments, params, &buf)
	require.NoError(t, err)

	assert.Equal(t, "mp4-bytes", buf.String())
	assert.Equal(t, int64(len("mp4-bytes")), artifact.Bytes)
	assert.Equal(t, params, enc.params)

	require.Len(t, enc.clips, 3)
	for i, clip := range enc.clips {
		assert.Equal(t, i, clip.Index)
		assert.Equal(t, segments[i].Narration.Audio, clip.Audio, "clip %d carries its own audio", i)

		visual := clip.VisualDuration(params.FrameRate)
		assert.GreaterOrEqual(t, visual, clip.Duration)
		assert.Less(t, visual-clip.Duration, params.FrameInterval())
	}
	assert.Equal(t, 48, enc.clips[0].FrameCount)
	assert.Equal(t, 25, enc.clips[1].FrameCount)
	assert.Equal(t, 12, enc.clips[2].FrameCount)

	require.Len(t, artifact.Segments, 3)
	assert.Equal(t, domain.SegmentAbstract, artifact.Segments[0].Kind)
	assert.Equal(t, id, *artifact.Segments[1].Image)
	assert.Equal(t, domain.SegmentConclusion, artifact.Segments[2].Kind)
	assert.Equal(t, 1, artifact.CountKind(domain.SegmentImageExplanation))
}

func TestAssemble_Failures(t *testing.T) {
	good := seg(domain.SegmentAbstract, time.Second, "a")

	tests := []struct {
		name     string
		segments []*domain.Segment
		params   domain.EncodingParams
		encErr   error
		summary  int
	}{
		{name: "empty", segments: nil, params: domain.DefaultEncodingParams(), summary: 0},
		{name: "zero duration", segments: []*domain.Segment{good, seg(domain.SegmentConclusion, 0, "c")}, params: domain.DefaultEncodingParams(), summary: 2},
		{name: "bad params", segments: []*domain.Segment{good}, params: domain.EncodingParams{FrameRate: 0, Width: 800, Height: 600}, summary: 1},
		{name: "odd frame size", segments: []*domain.Segment{good}, params: domain.EncodingParams{FrameRate: 24, Width: 801, Height: 601}, summary: 1},
		{name: "encoder error", segments: []*domain.Segment{good}, params: domain.DefaultEncodingParams(), encErr: errors.New("boom"), summary: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler(&recordingEncoder{err: tt.encErr}, nil)
			_, err := a.Assemble(context.Background(), tt.segments, tt.params, io.Discard)
			require.Error(t, err)

			var de *domain.DomainError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, domain.ErrorTypeEncoding, de.Type)
			assert.Len(t, de.Segments, tt.summary)
			if tt.encErr != nil {
				assert.ErrorIs(t, err, tt.encErr)
			}
		})
	}
}

func TestAssemble_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := NewAssembler(&recordingEncoder{err: context.Canceled}, nil)

	_, err := a.Assemble(ctx, []*domain.Segment{seg(domain.SegmentAbstract, time.Second, "a")}, domain.DefaultEncodingParams(), io.Discard)
	assert.True(t, domain.IsType(err, domain.ErrorTypeCancelled))
}

func TestFrameCount(t *testing.T) {
	assert.Equal(t, 0, FrameCount(0, 24))
	assert.Equal(t, 0, FrameCount(time.Second, 0))
	assert.Equal(t, 24, FrameCount(time.Second, 24))
	assert.Equal(t, 1, FrameCount(time.Nanosecond, 24))
	assert.Equal(t, 3, FrameCount(125*time.Millisecond, 24))
	assert.Equal(t, 4, FrameCount(126*time.Millisecond, 24))
}
