package audio

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/wav"
	"github.com/stretchr/testify/require"
	"gotest.tools/assert"
)

// stereoStream yields a constant left/right pair n times.
type stereoStream struct {
	left, right float64
	n           int
}

func (s *stereoStream) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if s.n == 0 {
			return i, i > 0
		}
		samples[i] = [2]float64{s.left, s.right}
		s.n--
	}
	return len(samples), true
}

func (*stereoStream) Err() error {
	return nil
}

func writeWAV(t *testing.T, format beep.Format, s beep.Streamer) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, wav.Encode(f, s, format))
	require.NoError(t, f.Close())
	return path
}

func quietLoader() *Loader {
	l := NewLoader()
	l.FFmpeg = "-"
	return l
}

func TestLoadWAVSameRate(t *testing.T) {
	format := beep.Format{SampleRate: 16000, NumChannels: 1, Precision: 2}
	tone, err := generators.SineTone(format.SampleRate, 440)
	require.NoError(t, err)
	path := writeWAV(t, format, beep.Take(format.SampleRate.N(time.Second), tone))

	l := quietLoader()
	l.Normalize = false
	buf, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 16000, buf.SampleRate)
	assert.Equal(t, 16000, len(buf.Samples))
	assert.Equal(t, time.Second, buf.Duration())
}

func TestLoadWAVResamplesToTarget(t *testing.T) {
	format := beep.Format{SampleRate: 8000, NumChannels: 1, Precision: 2}
	tone, err := generators.SineTone(format.SampleRate, 300)
	require.NoError(t, err)
	path := writeWAV(t, format, beep.Take(format.SampleRate.N(2*time.Second), tone))

	buf, err := quietLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, DefaultSampleRate, buf.SampleRate)
	// resampling may add or drop a handful of samples at the edges
	assert.Assert(t, math.Abs(float64(len(buf.Samples)-32000)) < 64, "got %d samples", len(buf.Samples))
}

func TestLoadDownmixesStereo(t *testing.T) {
	format := beep.Format{SampleRate: 16000, NumChannels: 2, Precision: 2}
	path := writeWAV(t, format, &stereoStream{left: 0.5, right: 0.1, n: 1600})

	l := quietLoader()
	l.Normalize = false
	buf, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, buf.Samples, 1600)
	for _, s := range buf.Samples {
		assert.Assert(t, math.Abs(float64(s)-0.3) < 1e-3, "sample %v", s)
	}
}

func TestLoadNormalizes(t *testing.T) {
	format := beep.Format{SampleRate: 16000, NumChannels: 1, Precision: 2}
	path := writeWAV(t, format, &stereoStream{left: 0.25, right: 0.25, n: 800})

	buf, err := quietLoader().Load(context.Background(), path)
	require.NoError(t, err)
	for _, s := range buf.Samples {
		assert.Assert(t, math.Abs(float64(s)-1) < 1e-6, "sample %v", s)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := quietLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
	assert.Assert(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadUnsupportedWithoutFFmpeg(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.m4a")
	require.NoError(t, os.WriteFile(path, []byte("not audio"), 0644))
	_, err := quietLoader().Load(context.Background(), path)
	assert.Assert(t, errors.Is(err, ErrUnsupported))
}

func TestNormalize(t *testing.T) {
	samples := []float32{0.1, -0.5, 0.25}
	Normalize(samples)
	assert.DeepEqual(t, []float32{0.2, -1, 0.5}, samples)

	silent := []float32{0, 0, 0}
	Normalize(silent)
	assert.DeepEqual(t, []float32{0, 0, 0}, silent)
}

func TestStreamAll32(t *testing.T) {
	samples, err := StreamAll32(&stereoStream{left: 1, right: 0, n: 3000})
	require.NoError(t, err)
	require.Len(t, samples, 3000)
	assert.Equal(t, float32(0.5), samples[0])
}
