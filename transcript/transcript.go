package transcript

import (
	"strings"
	"time"
)

type Word struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability"`
}

// Segment is a contiguous span of transcribed speech. Start and End are
// offsets in seconds from the beginning of the audio.
type Segment struct {
	ID               int     `json:"id"`
	Start            float64 `json:"start"`
	End              float64 `json:"end"`
	Text             string  `json:"text"`
	AvgLogProb       float64 `json:"avg_logprob"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
	CompressionRatio float64 `json:"compression_ratio"`
	Temperature      float64 `json:"temperature"`
	Words            []Word  `json:"words,omitempty"`
}

// Info is the summary the model reports alongside its segments.
type Info struct {
	Language            string
	LanguageProbability float64
	Duration            float64
	DurationAfterVAD    float64
	AllLanguageProbs    map[string]float64
}

// Settings echoes the decoding parameters a result was produced with.
type Settings struct {
	BeamSize       int       `json:"beam_size"`
	BestOf         int       `json:"best_of"`
	Temperature    []float64 `json:"temperature"`
	WordTimestamps bool      `json:"word_timestamps"`
	VADFilter      bool      `json:"vad_filter"`
	Device         string    `json:"device"`
	ComputeType    string    `json:"compute_type"`
}

type Result struct {
	Text                string             `json:"text"`
	Segments            []Segment          `json:"segments"`
	Language            string             `json:"language"`
	LanguageProbability float64            `json:"language_probability"`
	Duration            float64            `json:"duration"`
	DurationAfterVAD    float64            `json:"duration_after_vad"`
	AllLanguageProbs    map[string]float64 `json:"all_language_probs"`
	TranscriptionTime   float64            `json:"transcription_time"`
	AudioFile           string             `json:"audio_file"`
	ModelSize           string             `json:"model_size"`
	Settings            Settings           `json:"settings"`
}

// SegmentStream is a finite, single-pass sequence of segments in emission
// order. Next returns false once the stream is exhausted or has failed; Err
// reports the failure, if any.
type SegmentStream interface {
	Next() (Segment, bool)
	Err() error
	Close() error
}

// Observer is called with every segment as it is aggregated.
type Observer func(Segment)

// Source describes where a result came from.
type Source struct {
	AudioFile string
	ModelSize string
	Settings  Settings
}

// Aggregate drains stream once and builds the consolidated result. Elapsed
// is the wall-clock time to attribute to the transcription; callers that
// want it to include aggregation should pass a func that reads the clock.
func Aggregate(stream SegmentStream, info Info, src Source, elapsed func() time.Duration, observe Observer) (*Result, error) {
	segments := []Segment{}
	var text strings.Builder
	for {
		seg, ok := stream.Next()
		if !ok {
			break
		}
		if observe != nil {
			observe(seg)
		}
		text.WriteString(seg.Text)
		segments = append(segments, record(seg))
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	var took time.Duration
	if elapsed != nil {
		took = elapsed()
	}
	return &Result{
		Text:                strings.TrimSpace(text.String()),
		Segments:            segments,
		Language:            info.Language,
		LanguageProbability: info.LanguageProbability,
		Duration:            info.Duration,
		DurationAfterVAD:    info.DurationAfterVAD,
		AllLanguageProbs:    info.AllLanguageProbs,
		TranscriptionTime:   took.Seconds(),
		AudioFile:           src.AudioFile,
		ModelSize:           src.ModelSize,
		Settings:            src.Settings,
	}, nil
}

func record(seg Segment) Segment {
	out := seg
	out.Text = strings.TrimSpace(seg.Text)
	out.Words = nil
	if len(seg.Words) > 0 {
		out.Words = append([]Word(nil), seg.Words...)
	}
	return out
}

// SliceStream is a SegmentStream over segments that are already in memory.
type SliceStream struct {
	Segments []Segment
	cur      int
}

func (s *SliceStream) Next() (Segment, bool) {
	if s.cur >= len(s.Segments) {
		return Segment{}, false
	}
	seg := s.Segments[s.cur]
	s.cur++
	return seg, true
}

func (*SliceStream) Err() error {
	return nil
}

func (*SliceStream) Close() error {
	return nil
}
