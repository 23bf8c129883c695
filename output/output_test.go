package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/progrium/whisper-transcribe/transcript"
	"github.com/stretchr/testify/require"
	"gotest.tools/assert"
)

func twoSegments() *transcript.Result {
	return &transcript.Result{
		Text: "Hi there",
		Segments: []transcript.Segment{
			{ID: 7, Start: 0.0, End: 1.5, Text: "Hi"},
			{ID: 9, Start: 1.5, End: 3.0, Text: "there"},
		},
		Language: "en",
	}
}

func TestSRT(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SRT(&buf, twoSegments()))
	want := "1\n00:00:00,000 --> 00:00:01,500\nHi\n\n" +
		"2\n00:00:01,500 --> 00:00:03,000\nthere\n\n"
	assert.Equal(t, want, buf.String())
}

func TestVTT(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, VTT(&buf, twoSegments()))
	want := "WEBVTT\n\n" +
		"00:00:00.000 --> 00:00:01.500\nHi\n\n" +
		"00:00:01.500 --> 00:00:03.000\nthere\n\n"
	assert.Equal(t, want, buf.String())
}

func TestSubtitlesTrimText(t *testing.T) {
	r := &transcript.Result{Segments: []transcript.Segment{{Start: 0, End: 1, Text: "  padded  "}}}
	var buf bytes.Buffer
	require.NoError(t, SRT(&buf, r))
	assert.Equal(t, "1\n00:00:00,000 --> 00:00:01,000\npadded\n\n", buf.String())
}

func TestVTTEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, VTT(&buf, &transcript.Result{Segments: []transcript.Segment{}}))
	assert.Equal(t, "WEBVTT\n\n", buf.String())
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, &transcript.Result{Text: "Grüße aus Köln"}))
	assert.Equal(t, "Grüße aus Köln", buf.String())
}

func TestJSONKeysAndUnicode(t *testing.T) {
	r := twoSegments()
	r.Text = "こんにちは <world> & more"
	r.Segments[0].Words = []transcript.Word{{Word: " Hi", Start: 0, End: 0.4, Probability: 0.9}}

	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, r))
	out := buf.String()
	assert.Assert(t, strings.Contains(out, `"text": "こんにちは <world> & more"`), out)
	assert.Assert(t, strings.Contains(out, "\n  \"segments\": ["), out)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &generic))
	for _, key := range []string{"text", "segments", "language", "language_probability", "duration",
		"duration_after_vad", "all_language_probs", "transcription_time", "audio_file", "model_size", "settings"} {
		_, ok := generic[key]
		assert.Assert(t, ok, "missing key %q", key)
	}
	segs := generic["segments"].([]any)
	first := segs[0].(map[string]any)
	_, hasWords := first["words"]
	assert.Assert(t, hasWords)
	second := segs[1].(map[string]any)
	_, hasWords = second["words"]
	assert.Assert(t, !hasWords, "segments without words omit the key")
}

func TestCBORRoundTrip(t *testing.T) {
	r := twoSegments()
	r.Settings.Temperature = []float64{0, 0.2, 0.4}
	var buf bytes.Buffer
	require.NoError(t, CBOR(&buf, r))

	var out transcript.Result
	require.NoError(t, cbor.Unmarshal(buf.Bytes(), &out))
	assert.DeepEqual(t, r, &out, cmpopts.EquateEmpty())
}

func TestParseFormats(t *testing.T) {
	got, err := ParseFormats([]string{"txt,json", " SRT ", "vtt"})
	require.NoError(t, err)
	assert.DeepEqual(t, []Format{FormatText, FormatJSON, FormatSRT, FormatVTT}, got)

	_, err = ParseFormats([]string{"txt", "docx"})
	assert.Assert(t, errors.Is(err, ErrUnknownFormat))
}

func TestFilename(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "talk_transcript.srt"), Filename("out", "/audio/talk.mp3", FormatSRT))
	assert.Equal(t, filepath.Join("d", "a.b_transcript.json"), Filename("d", "a.b.wav", FormatJSON))
	assert.Equal(t, filepath.Join("d", ".hidden_transcript.txt"), Filename("d", "/rec/.hidden", FormatText))
	assert.Equal(t, filepath.Join("d", ".hidden_transcript.txt"), Filename("d", "/rec/.hidden.wav", FormatText))
	assert.Equal(t, filepath.Join("d", "memo_transcript.vtt"), Filename("d", "memo", FormatVTT))
}

func TestWriteFileAndReadResult(t *testing.T) {
	dir := t.TempDir()
	r := twoSegments()
	for _, f := range []Format{FormatJSON, FormatCBOR} {
		path := Filename(dir, "clip.wav", f)
		w, ok := Lookup(f)
		require.True(t, ok)
		require.NoError(t, WriteFile(path, w, r))

		back, err := ReadResult(path)
		require.NoError(t, err)
		assert.DeepEqual(t, r, back, cmpopts.EquateEmpty())
	}
}

func TestWriteFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x_transcript.txt")
	require.NoError(t, os.WriteFile(path, []byte("old content that is longer"), 0644))
	require.NoError(t, WriteFile(path, Text, &transcript.Result{Text: "new"}))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
}

func TestWriteFileMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "x_transcript.txt")
	err := WriteFile(path, Text, &transcript.Result{Text: "new"})
	assert.Assert(t, errors.Is(err, os.ErrNotExist))
}

func TestReadResultRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x_transcript.srt")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	_, err := ReadResult(path)
	assert.Assert(t, errors.Is(err, ErrUnknownFormat))
}
