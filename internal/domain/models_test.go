package domain

import (
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageID_Less(t *testing.T) {
	ids := []ImageID{{2, 1}, {1, 2}, {1, 1}, {3, 1}, {2, 2}}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })

	assert.Equal(t, []ImageID{{1, 1}, {1, 2}, {2, 1}, {2, 2}, {3, 1}}, ids)
	assert.Equal(t, "page 1 image 2", ImageID{1, 2}.String())
}

func TestExtractionResult_Section(t *testing.T) {
	r := ExtractionResult{Abstract: "We study things."}

	abs := r.Section(SectionAbstract)
	assert.True(t, abs.Found())
	assert.Equal(t, "We study things.", abs.Text)

	assert.False(t, r.Section(SectionConclusion).Found())
	assert.Equal(t, "Abstract", SectionAbstract.Title())
	assert.Equal(t, "Conclusion", SectionConclusion.Title())
}

func TestEncodingParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  EncodingParams
		wantErr bool
	}{
		{"defaults", DefaultEncodingParams(), false},
		{"zero fps", EncodingParams{FrameRate: 0, Width: 800, Height: 600}, true},
		{"zero width", EncodingParams{FrameRate: 24, Width: 0, Height: 600}, true},
		{"negative height", EncodingParams{FrameRate: 24, Width: 800, Height: -1}, true},
		{"odd width", EncodingParams{FrameRate: 24, Width: 801, Height: 600}, true},
		{"odd height", EncodingParams{FrameRate: 24, Width: 800, Height: 601}, true},
		{"even non-default", EncodingParams{FrameRate: 30, Width: 1280, Height: 720}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsType(err, ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestEncodingParams_FrameInterval(t *testing.T) {
	p := DefaultEncodingParams()
	assert.Equal(t, time.Second/24, p.FrameInterval())
	assert.Equal(t, time.Duration(0), EncodingParams{}.FrameInterval())
}

func TestSegment_ReleaseKeepsSummary(t *testing.T) {
	id := ImageID{Page: 1, Ordinal: 1}
	s := &Segment{
		Kind:      SegmentImageExplanation,
		Caption:   "A bar chart.",
		Image:     &id,
		Narration: Narration{Audio: []byte("RIFF"), Duration: 2 * time.Second},
		Duration:  2 * time.Second,
	}

	s.Release()

	assert.Nil(t, s.Narration.Audio)
	assert.Nil(t, s.Frame)
	sum := s.Summary()
	assert.Equal(t, SegmentImageExplanation, sum.Kind)
	assert.Equal(t, 2*time.Second, sum.Duration)
	assert.Equal(t, &id, sum.Image)
}

func TestSummaries_SkipsNil(t *testing.T) {
	segs := []*Segment{{Kind: SegmentAbstract}, nil, {Kind: SegmentConclusion}}
	sums := Summaries(segs)
	require.Len(t, sums, 2)
	assert.Equal(t, SegmentConclusion, sums[1].Kind)
}

func TestClip_VisualDuration(t *testing.T) {
	c := Clip{FrameCount: 48}
	assert.Equal(t, 2*time.Second, c.VisualDuration(24))
	assert.Equal(t, time.Duration(0), c.VisualDuration(0))
}

func TestVideoArtifact_CountKind(t *testing.T) {
	a := &VideoArtifact{Segments: []SegmentSummary{
		{Kind: SegmentAbstract},
		{Kind: SegmentImageExplanation},
		{Kind: SegmentImageExplanation},
	}}
	assert.Equal(t, 2, a.CountKind(SegmentImageExplanation))
	assert.Equal(t, 0, a.CountKind(SegmentConclusion))
}

func TestDomainError(t *testing.T) {
	base := errors.New("boom")
	err := ExplanationError("explain figure", base).WithStage("explaining").WithImage(ImageID{2, 1})

	assert.Equal(t, "[explaining/explanation] explain figure (page 2 image 1): boom", err.Error())
	assert.ErrorIs(t, err, base)
	assert.True(t, IsType(fmt.Errorf("wrapped: %w", err), ErrorTypeExplanation))
	assert.False(t, IsType(base, ErrorTypeExplanation))
	assert.True(t, IsType(ErrNoImagesFound, ErrorTypeNoImages))
}

func TestTransient(t *testing.T) {
	base := errors.New("503")
	assert.Nil(t, Transient(nil))
	assert.True(t, IsTransient(Transient(base)))
	assert.True(t, IsTransient(fmt.Errorf("call: %w", Transient(base))))
	assert.False(t, IsTransient(base))
	assert.ErrorIs(t, Transient(base), base)
}
