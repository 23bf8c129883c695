package transcript

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp/cmpopts"
	"gotest.tools/assert"
)

type failingStream struct {
	SliceStream
	err error
}

func (s *failingStream) Err() error {
	return s.err
}

func TestAggregateText(t *testing.T) {
	stream := &SliceStream{Segments: []Segment{
		{ID: 1, Start: 0, End: 1, Text: " Hello "},
		{ID: 2, Start: 1, End: 2, Text: " world."},
	}}
	res, err := Aggregate(stream, Info{Language: "en"}, Source{}, nil, nil)
	assert.NilError(t, err)
	assert.Equal(t, "Hello  world.", res.Text)
	assert.Equal(t, 2, len(res.Segments))
	assert.Equal(t, "Hello", res.Segments[0].Text)
	assert.Equal(t, "world.", res.Segments[1].Text)
}

func TestAggregatePreservesOrderAndFields(t *testing.T) {
	in := []Segment{
		{ID: 0, Start: 0, End: 1.5, Text: " Hi", AvgLogProb: -0.2, NoSpeechProb: 0.01, CompressionRatio: 1.1, Temperature: 0},
		{ID: 1, Start: 1.5, End: 3, Text: " there", AvgLogProb: -0.4, NoSpeechProb: 0.02, CompressionRatio: 1.3, Temperature: 0.2,
			Words: []Word{{Word: " there", Start: 1.5, End: 2.9, Probability: 0.93}}},
		{ID: 2, Start: 3, End: 3, Text: ""},
	}
	res, err := Aggregate(&SliceStream{Segments: in}, Info{}, Source{}, nil, nil)
	assert.NilError(t, err)

	want := []Segment{
		{ID: 0, Start: 0, End: 1.5, Text: "Hi", AvgLogProb: -0.2, NoSpeechProb: 0.01, CompressionRatio: 1.1, Temperature: 0},
		{ID: 1, Start: 1.5, End: 3, Text: "there", AvgLogProb: -0.4, NoSpeechProb: 0.02, CompressionRatio: 1.3, Temperature: 0.2,
			Words: []Word{{Word: " there", Start: 1.5, End: 2.9, Probability: 0.93}}},
		{ID: 2, Start: 3, End: 3, Text: ""},
	}
	assert.DeepEqual(t, want, res.Segments)
	assert.Equal(t, "Hi there", res.Text)
}

func TestAggregateEmpty(t *testing.T) {
	res, err := Aggregate(&SliceStream{}, Info{Language: "de", Duration: 4.2}, Source{AudioFile: "a.wav"}, nil, nil)
	assert.NilError(t, err)
	assert.Equal(t, "", res.Text)
	assert.Assert(t, res.Segments != nil)
	assert.Equal(t, 0, len(res.Segments))
	assert.Equal(t, "de", res.Language)
	assert.Equal(t, 4.2, res.Duration)
	assert.Equal(t, "a.wav", res.AudioFile)
}

func TestAggregateMetadata(t *testing.T) {
	info := Info{
		Language:            "en",
		LanguageProbability: 0.97,
		Duration:            12.5,
		DurationAfterVAD:    10.25,
		AllLanguageProbs:    map[string]float64{"en": 0.97, "de": 0.02},
	}
	src := Source{
		AudioFile: "/tmp/talk.mp3",
		ModelSize: "large-v3",
		Settings: Settings{
			BeamSize:    5,
			BestOf:      5,
			Temperature: []float64{0, 0.2},
			VADFilter:   true,
			Device:      "cpu",
			ComputeType: "int8",
		},
	}
	elapsed := func() time.Duration { return 1500 * time.Millisecond }

	res, err := Aggregate(&SliceStream{Segments: []Segment{{Text: "x"}}}, info, src, elapsed, nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, &Result{
		Text:                "x",
		Segments:            []Segment{{Text: "x"}},
		Language:            "en",
		LanguageProbability: 0.97,
		Duration:            12.5,
		DurationAfterVAD:    10.25,
		AllLanguageProbs:    map[string]float64{"en": 0.97, "de": 0.02},
		TranscriptionTime:   1.5,
		AudioFile:           "/tmp/talk.mp3",
		ModelSize:           "large-v3",
		Settings:            src.Settings,
	}, res, cmpopts.EquateEmpty())
}

func TestAggregateObserverSeesEverySegment(t *testing.T) {
	stream := &SliceStream{Segments: []Segment{{ID: 0, Text: "a"}, {ID: 1, Text: "b"}, {ID: 2, Text: "c"}}}
	var seen []int
	_, err := Aggregate(stream, Info{}, Source{}, nil, func(s Segment) {
		seen = append(seen, s.ID)
	})
	assert.NilError(t, err)
	assert.DeepEqual(t, []int{0, 1, 2}, seen)
}

func TestAggregatePropagatesStreamError(t *testing.T) {
	boom := errors.New("inference failed")
	stream := &failingStream{SliceStream: SliceStream{Segments: []Segment{{Text: "partial"}}}, err: boom}
	res, err := Aggregate(stream, Info{}, Source{}, nil, nil)
	assert.Assert(t, res == nil)
	assert.Assert(t, errors.Is(err, boom))
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seconds float64
		style   Style
		want    string
	}{
		{3725.125, StyleSRT, "01:02:05,125"},
		{3725.125, StyleVTT, "01:02:05.125"},
		{0, StyleSRT, "00:00:00,000"},
		{0, StyleVTT, "00:00:00.000"},
		{1.5, StyleSRT, "00:00:01,500"},
		{59.25, StyleVTT, "00:00:59.250"},
		{61, StyleVTT, "00:01:01.000"},
		{360000.5, StyleSRT, "100:00:00,500"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimestamp(tt.seconds, tt.style), "seconds=%v style=%v", tt.seconds, tt.style)
	}
}
