package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
)

// Whisper models are trained on 16kHz mono audio.
const DefaultSampleRate = 16000

// resampleQuality is passed to beep.Resample; 4 is beep's recommended
// quality for offline work.
const resampleQuality = 4

var ErrUnsupported = errors.New("unsupported audio format")

// Buffer holds mono samples at a fixed rate.
type Buffer struct {
	Samples    []float32
	SampleRate int
}

func (b Buffer) Duration() time.Duration {
	if b.SampleRate == 0 {
		return 0
	}
	return beep.SampleRate(b.SampleRate).D(len(b.Samples))
}

type Loader struct {
	SampleRate int
	Normalize  bool
	// FFmpeg is the binary used for containers beep cannot decode. Empty
	// means "ffmpeg" from PATH; "-" disables the fallback.
	FFmpeg string
	Logger *slog.Logger
}

func NewLoader() *Loader {
	return &Loader{
		SampleRate: DefaultSampleRate,
		Normalize:  true,
	}
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// Load decodes path into a mono buffer at the loader's sample rate,
// normalizing the peak amplitude to 1 when enabled.
func (l *Loader) Load(ctx context.Context, path string) (Buffer, error) {
	rate := l.SampleRate
	if rate == 0 {
		rate = DefaultSampleRate
	}
	log := l.logger()
	log.InfoContext(ctx, "audio: preprocessing", slog.String("path", path))

	samples, err := l.decode(ctx, path, rate)
	if err != nil {
		log.ErrorContext(ctx, "audio: preprocessing failed", slog.String("path", path), slog.String("error", err.Error()))
		return Buffer{}, err
	}
	if l.Normalize {
		Normalize(samples)
	}

	buf := Buffer{Samples: samples, SampleRate: rate}
	log.InfoContext(ctx, "audio: preprocessed",
		slog.String("duration", fmt.Sprintf("%.2fs", buf.Duration().Seconds())),
		slog.Int("sample_rate", rate))
	return buf, nil
}

func (l *Loader) decode(ctx context.Context, path string, rate int) ([]float32, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav", ".wave", ".mp3", ".flac", ".ogg", ".oga", ".opus":
		s, format, closer, err := openStreamer(path, ext)
		if err != nil {
			return nil, err
		}
		defer closer.Close()
		return resampleAll(s, format.SampleRate, beep.SampleRate(rate))
	}
	if l.FFmpeg == "-" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
	return decodeFFmpeg(ctx, l.FFmpeg, path, rate)
}

func openStreamer(path, ext string) (beep.Streamer, beep.Format, io.Closer, error) {
	if ext == ".ogg" || ext == ".oga" || ext == ".opus" {
		channels, isOpus, err := probeOpus(path)
		if err != nil {
			return nil, beep.Format{}, nil, err
		}
		if isOpus {
			return openOpus(path, channels)
		}
		if ext == ".opus" {
			return nil, beep.Format{}, nil, fmt.Errorf("%w: %s has no OpusHead", ErrUnsupported, filepath.Base(path))
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, nil, err
	}
	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch ext {
	case ".wav", ".wave":
		s, format, err = wav.Decode(f)
	case ".mp3":
		s, format, err = mp3.Decode(f)
	case ".flac":
		s, format, err = flac.Decode(f)
	default:
		s, format, err = vorbis.Decode(f)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return s, format, closers{s, f}, nil
}

type closers []io.Closer

func (c closers) Close() error {
	var errs []error
	for _, cl := range c {
		if err := cl.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func resampleAll(s beep.Streamer, from, to beep.SampleRate) ([]float32, error) {
	if from != to {
		s = beep.Resample(resampleQuality, from, to, s)
	}
	return StreamAll32(s)
}

// StreamAll32 drains streamer, averaging both channels into mono samples.
func StreamAll32(streamer beep.Streamer) ([]float32, error) {
	var all []float32
	buffer := make([][2]float64, 1024)
	for {
		n, ok := streamer.Stream(buffer)
		for i := 0; i < n; i++ {
			all = append(all, float32((buffer[i][0]+buffer[i][1])/2))
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return nil, err
	}
	return all, nil
}

// Normalize scales samples in place so the largest magnitude is 1. Silent
// input is left untouched.
func Normalize(samples []float32) {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return
	}
	for i, s := range samples {
		samples[i] = float32(float64(s) / peak)
	}
}
