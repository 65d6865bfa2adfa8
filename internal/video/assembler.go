// Package video assembles narrated segments into the final video.
package video

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spherical/paper-video/internal/domain"
	"github.com/spherical/paper-video/internal/observability"
)

// Assembler turns ordered segments into encoder clips and writes the video
type Assembler struct {
	encoder domain.VideoEncoder
	logger  *observability.Logger
}

// NewAssembler creates an assembler over the given encoder
func NewAssembler(encoder domain.VideoEncoder, logger *observability.Logger) *Assembler {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Assembler{
		encoder: encoder,
		logger:  logger.WithStage("assembling"),
	}
}

// Assemble encodes the segments in order into dst. Each clip holds its frame
// for ceil(duration*fps) frames, so the visual track never ends before the
// narration and overshoots it by less than one frame interval.
func (a *Assembler) Assemble(ctx context.Context, segments []*domain.Segment, params domain.EncodingParams, dst io.Writer) (*domain.VideoArtifact, error) {
	fail := func(msg string, err error) error {
		return domain.EncodingError(msg, err).WithStage("assembling").WithSegments(domain.Summaries(segments))
	}

	if len(segments) == 0 {
		return nil, fail("no segments to assemble", nil)
	}
	if err := params.Validate(); err != nil {
		return nil, fail("invalid encoding parameters", err)
	}

	clips := make([]domain.Clip, 0, len(segments))
	var total time.Duration
	for i, seg := range segments {
		if seg == nil {
			return nil, fail(fmt.Sprintf("segment %d is missing", i), nil)
		}
		if seg.Duration <= 0 {
			return nil, fail(fmt.Sprintf("segment %d has non-positive duration %s", i, seg.Duration), nil)
		}
		if seg.Frame == nil {
			return nil, fail(fmt.Sprintf("segment %d has no frame", i), nil)
		}

		clip := domain.Clip{
			Index:       i,
			Frame:       seg.Frame,
			Audio:       seg.Narration.Audio,
			AudioFormat: seg.Narration.Format,
			Duration:    seg.Duration,
			FrameCount:  FrameCount(seg.Duration, params.FrameRate),
		}
		total += clip.VisualDuration(params.FrameRate)
		clips = append(clips, clip)
	}

	startTime := time.Now()
	cw := &countingWriter{w: dst}
	if err := a.encoder.Encode(ctx, clips, params, cw); err != nil {
		if ctx.Err() != nil {
			return nil, domain.CancelledError("encoding cancelled", ctx.Err()).WithSegments(domain.Summaries(segments))
		}
		return nil, fail("encode video", err)
	}

	a.logger.Info().
		Int("segments", len(clips)).
		Int64("bytes", cw.n).
		Dur("video_duration", total).
		Dur("elapsed", time.Since(startTime)).
		Msg("Video assembled")

	return &domain.VideoArtifact{
		Segments: domain.Summaries(segments),
		Params:   params,
		Bytes:    cw.n,
		Duration: total,
	}, nil
}

// FrameCount is the number of frames needed to cover d at fps
func FrameCount(d time.Duration, fps int) int {
	if d <= 0 || fps <= 0 {
		return 0
	}
	n := int64(d) * int64(fps)
	return int((n + int64(time.Second) - 1) / int64(time.Second))
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
