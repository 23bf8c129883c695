package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/progrium/whisper-transcribe/audio"
	"github.com/progrium/whisper-transcribe/output"
	"github.com/progrium/whisper-transcribe/transcript"
	"github.com/progrium/whisper-transcribe/whisper"
)

// ErrAudioNotFound wraps fs.ErrNotExist.
var ErrAudioNotFound = fmt.Errorf("audio file not found: %w", fs.ErrNotExist)

type Loader interface {
	Load(ctx context.Context, path string) (audio.Buffer, error)
}

// Engine runs inference. *whisper.Model implements it.
type Engine interface {
	Transcribe(ctx context.Context, buf audio.Buffer, opts whisper.Options) (transcript.SegmentStream, transcript.Info, error)
	Config() whisper.ModelConfig
}

var _ Engine = (*whisper.Model)(nil)

type Transcriber struct {
	Loader Loader
	Engine Engine
	Logger *slog.Logger
	// Observer, if set, sees every segment as it is aggregated.
	Observer transcript.Observer
}

type FileOptions struct {
	// OutputDir defaults to the directory of the audio file. It is created
	// when missing.
	OutputDir string
	// Formats are output format tags. Unknown tags are skipped.
	Formats []string
	Options whisper.Options
}

func (t *Transcriber) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

// Transcribe loads the audio at path and runs the model over it, returning
// the aggregated result. Nothing is loaded when the file does not exist.
func (t *Transcriber) Transcribe(ctx context.Context, path string, opts whisper.Options) (*transcript.Result, error) {
	log := t.logger().With(slog.String("run", xid.New().String()), slog.String("audio", path))

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrAudioNotFound, path)
		}
		log.ErrorContext(ctx, "transcriber: cannot read audio", slog.String("error", err.Error()))
		return nil, err
	}

	log.InfoContext(ctx, "transcriber: starting transcription")
	start := time.Now()

	buf, err := t.Loader.Load(ctx, path)
	if err != nil {
		log.ErrorContext(ctx, "transcriber: transcription failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("load audio: %w", err)
	}

	stream, info, err := t.Engine.Transcribe(ctx, buf, opts)
	if err != nil {
		log.ErrorContext(ctx, "transcriber: transcription failed", slog.String("error", err.Error()))
		return nil, err
	}
	defer stream.Close()

	cfg := t.Engine.Config()
	log.InfoContext(ctx, "transcriber: processing segments")
	result, err := transcript.Aggregate(stream, info, transcript.Source{
		AudioFile: path,
		ModelSize: cfg.Size,
		Settings:  whisper.Settings(cfg, opts),
	}, func() time.Duration { return time.Since(start) }, t.Observer)
	if err != nil {
		log.ErrorContext(ctx, "transcriber: transcription failed", slog.String("error", err.Error()))
		return nil, err
	}

	log.InfoContext(ctx, "transcriber: transcription completed",
		slog.String("elapsed", fmt.Sprintf("%.2fs", result.TranscriptionTime)))
	log.InfoContext(ctx, "transcriber: detected language",
		slog.String("language", result.Language),
		slog.String("confidence", fmt.Sprintf("%.3f", result.LanguageProbability)))
	log.InfoContext(ctx, "transcriber: audio duration",
		slog.String("duration", fmt.Sprintf("%.2fs", result.Duration)))
	return result, nil
}

// TranscribeFile transcribes path and writes one file per requested format
// as <dir>/<base>_transcript.<suffix>. It returns the paths written.
func (t *Transcriber) TranscribeFile(ctx context.Context, path string, fo FileOptions) (*transcript.Result, []string, error) {
	log := t.logger()

	dir := fo.OutputDir
	if dir == "" {
		dir = filepath.Dir(path)
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		log.ErrorContext(ctx, "transcriber: cannot create output directory", slog.String("dir", dir), slog.String("error", err.Error()))
		return nil, nil, err
	}

	result, err := t.Transcribe(ctx, path, fo.Options)
	if err != nil {
		return nil, nil, err
	}

	written, err := WriteAll(ctx, log, result, dir, path, fo.Formats)
	return result, written, err
}

// WriteAll writes result in every format named by tags. Unknown tags are
// logged and skipped. Writing stops at the first failure; files already
// written stay in place.
func WriteAll(ctx context.Context, log *slog.Logger, result *transcript.Result, dir, audioPath string, tags []string) ([]string, error) {
	var written []string
	for _, tag := range tags {
		f := output.Format(strings.ToLower(strings.TrimSpace(tag)))
		write, ok := output.Lookup(f)
		if !ok {
			log.WarnContext(ctx, "transcriber: skipping unknown output format", slog.String("format", tag))
			continue
		}
		dest := output.Filename(dir, audioPath, f)
		if err := output.WriteFile(dest, write, result); err != nil {
			log.ErrorContext(ctx, "transcriber: failed to save transcript", slog.String("path", dest), slog.String("error", err.Error()))
			return written, err
		}
		log.InfoContext(ctx, "transcriber: saved transcript", slog.String("format", string(f)), slog.String("path", dest))
		written = append(written, dest)
	}
	return written, nil
}
