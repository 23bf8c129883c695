package whisper

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/progrium/whisper-transcribe/audio"
	"github.com/progrium/whisper-transcribe/transcript"
	"github.com/rs/xid"
)

//go:embed helper.py
var helperScript []byte

var (
	ErrModelLoad = errors.New("model load failed")
	ErrHelper    = errors.New("whisper helper failed")
)

// Model is a faster-whisper model living in a Python helper process.
// Requests are serialized: a Transcribe call holds the model until its
// segment stream is drained or closed.
type Model struct {
	cfg ModelConfig
	log *slog.Logger

	cmd    *exec.Cmd
	script string
	stdin  io.WriteCloser
	lines  chan []byte
	exit   chan struct{}
	quit   chan struct{}
	stop   func()
	waitMu sync.Mutex
	exited error

	mu     sync.Mutex
	broken error
}

// Load starts the helper process and waits until it reports the model as
// loaded. The process is bound to ctx.
func Load(ctx context.Context, cfg ModelConfig, log *slog.Logger) (*Model, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "whisper: initializing model", slog.String("model", cfg.Size))
	log.InfoContext(ctx, "whisper: runtime",
		slog.String("device", cfg.Device),
		slog.String("compute_type", cfg.EffectiveComputeType()))

	script := filepath.Join(os.TempDir(), fmt.Sprintf("whisper-helper-%s.py", xid.New().String()))
	if err := os.WriteFile(script, helperScript, 0o644); err != nil {
		return nil, fmt.Errorf("%w: write helper script: %w", ErrModelLoad, err)
	}

	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	cmd := exec.CommandContext(ctx, python, append([]string{"-u", script}, helperArgs(cfg)...)...)
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.Remove(script)
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		os.Remove(script)
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	if err := cmd.Start(); err != nil {
		os.Remove(script)
		return nil, fmt.Errorf("%w: start %s: %w", ErrModelLoad, python, err)
	}

	m := newModel(cfg, stdin, stdout, cmd.Wait, log)
	m.cmd = cmd
	m.script = script

	if err := m.awaitReady(ctx); err != nil {
		m.Close()
		log.ErrorContext(ctx, "whisper: failed to load model", slog.String("error", err.Error()))
		return nil, err
	}
	log.InfoContext(ctx, "whisper: model loaded")
	return m, nil
}

func helperArgs(cfg ModelConfig) []string {
	args := []string{
		"--model", cfg.Size,
		"--device", cfg.Device,
		"--compute-type", cfg.EffectiveComputeType(),
		"--cpu-threads", strconv.Itoa(cfg.CPUThreads),
		"--num-workers", strconv.Itoa(cfg.NumWorkers),
	}
	if cfg.DownloadRoot != "" {
		args = append(args, "--download-root", cfg.DownloadRoot)
	}
	if cfg.LocalFilesOnly {
		args = append(args, "--local-files-only")
	}
	if len(cfg.SuppressWarnings) > 0 {
		args = append(args, "--suppress-warnings", strings.Join(cfg.SuppressWarnings, ","))
	}
	return args
}

// newModel wires a model to an already running helper. wait, if set, is
// called once stdout is exhausted to collect the helper's exit status.
func newModel(cfg ModelConfig, stdin io.WriteCloser, stdout io.Reader, wait func() error, log *slog.Logger) *Model {
	m := &Model{
		cfg:   cfg,
		log:   log,
		stdin: stdin,
		lines: make(chan []byte),
		exit:  make(chan struct{}),
		quit:  make(chan struct{}),
	}
	m.stop = sync.OnceFunc(func() { close(m.quit) })
	go m.readLines(stdout, wait)
	return m
}

func (m *Model) readLines(r io.Reader, wait func() error) {
	defer close(m.exit)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		select {
		case m.lines <- line:
		case <-m.quit:
			// nobody is listening anymore; keep reading until the helper
			// exits so its pipe never fills up
		}
	}
	if err := scanner.Err(); err != nil {
		m.setExited(err)
	}
	if wait != nil {
		m.setExited(wait())
	}
	close(m.lines)
}

func (m *Model) setExited(err error) {
	m.waitMu.Lock()
	defer m.waitMu.Unlock()
	if m.exited == nil {
		m.exited = err
	}
}

func (m *Model) exitErr() error {
	m.waitMu.Lock()
	defer m.waitMu.Unlock()
	if m.exited != nil {
		return m.exited
	}
	return io.ErrUnexpectedEOF
}

func (m *Model) Config() ModelConfig {
	return m.cfg
}

type message struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`

	// info
	Language            string             `json:"language,omitempty"`
	LanguageProbability float64            `json:"language_probability,omitempty"`
	Duration            float64            `json:"duration,omitempty"`
	DurationAfterVAD    float64            `json:"duration_after_vad,omitempty"`
	AllLanguageProbs    map[string]float64 `json:"all_language_probs,omitempty"`

	// segment
	transcript.Segment
}

type request struct {
	Samples    int     `json:"samples"`
	SampleRate int     `json:"sample_rate"`
	Options    Options `json:"options"`
}

func (m *Model) next(ctx context.Context) (message, error) {
	select {
	case <-ctx.Done():
		return message{}, ctx.Err()
	case <-m.quit:
		return message{}, fmt.Errorf("%w: model closed", ErrHelper)
	case line, ok := <-m.lines:
		if !ok {
			return message{}, fmt.Errorf("%w: helper exited: %w", ErrHelper, m.exitErr())
		}
		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			return message{}, fmt.Errorf("%w: bad message %q: %w", ErrHelper, line, err)
		}
		return msg, nil
	}
}

func (m *Model) awaitReady(ctx context.Context) error {
	msg, err := m.next(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	switch msg.Type {
	case "ready":
		return nil
	case "error":
		return fmt.Errorf("%w: %s", ErrModelLoad, msg.Message)
	default:
		return fmt.Errorf("%w: unexpected %q message", ErrModelLoad, msg.Type)
	}
}

// abort kills the helper after the protocol got out of step. The model is
// unusable afterwards.
func (m *Model) abort(err error) {
	if m.broken == nil {
		m.broken = err
	}
	m.stop()
	m.stdin.Close()
	if m.cmd != nil && m.cmd.Process != nil {
		m.cmd.Process.Kill()
	}
}

// Transcribe sends samples to the model. The returned stream yields
// segments as the model produces them and must be drained or closed before
// the model accepts another request.
func (m *Model) Transcribe(ctx context.Context, buf audio.Buffer, opts Options) (transcript.SegmentStream, transcript.Info, error) {
	if err := opts.Validate(); err != nil {
		return nil, transcript.Info{}, err
	}
	m.mu.Lock()
	release := sync.OnceFunc(m.mu.Unlock)
	if m.broken != nil {
		release()
		return nil, transcript.Info{}, fmt.Errorf("%w: model unusable: %w", ErrHelper, m.broken)
	}

	if err := m.send(buf, opts); err != nil {
		m.abort(err)
		release()
		return nil, transcript.Info{}, fmt.Errorf("%w: send audio: %w", ErrHelper, err)
	}

	msg, err := m.next(ctx)
	if err != nil {
		m.abort(err)
		release()
		return nil, transcript.Info{}, err
	}
	switch msg.Type {
	case "info":
	case "error":
		release()
		return nil, transcript.Info{}, fmt.Errorf("%w: %s", ErrHelper, msg.Message)
	default:
		err := fmt.Errorf("%w: expected info, got %q", ErrHelper, msg.Type)
		m.abort(err)
		release()
		return nil, transcript.Info{}, err
	}

	info := transcript.Info{
		Language:            msg.Language,
		LanguageProbability: msg.LanguageProbability,
		Duration:            msg.Duration,
		DurationAfterVAD:    msg.DurationAfterVAD,
		AllLanguageProbs:    msg.AllLanguageProbs,
	}
	return &segmentStream{m: m, ctx: ctx, release: release}, info, nil
}

func (m *Model) send(buf audio.Buffer, opts Options) error {
	w := bufio.NewWriter(m.stdin)
	header, err := json.Marshal(request{
		Samples:    len(buf.Samples),
		SampleRate: buf.SampleRate,
		Options:    opts,
	})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s\n", header); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, buf.Samples); err != nil {
		return err
	}
	return w.Flush()
}

// Close stops the helper and removes its script.
func (m *Model) Close() error {
	m.stop()
	m.stdin.Close()
	<-m.exit
	m.waitMu.Lock()
	err := m.exited
	m.waitMu.Unlock()
	if m.script != "" {
		os.Remove(m.script)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && m.broken != nil {
		// killed on purpose
		return nil
	}
	return err
}

type segmentStream struct {
	m       *Model
	ctx     context.Context
	release func()
	err     error
	done    bool
}

var _ transcript.SegmentStream = (*segmentStream)(nil)

func (s *segmentStream) Next() (transcript.Segment, bool) {
	if s.done {
		return transcript.Segment{}, false
	}
	msg, err := s.m.next(s.ctx)
	if err != nil {
		s.m.abort(err)
		s.finish(err)
		return transcript.Segment{}, false
	}
	switch msg.Type {
	case "segment":
		return msg.Segment, true
	case "done":
		s.finish(nil)
	case "error":
		s.finish(fmt.Errorf("%w: %s", ErrHelper, msg.Message))
	default:
		err := fmt.Errorf("%w: unexpected %q message", ErrHelper, msg.Type)
		s.m.abort(err)
		s.finish(err)
	}
	return transcript.Segment{}, false
}

func (s *segmentStream) finish(err error) {
	s.done = true
	s.err = err
	s.release()
}

func (s *segmentStream) Err() error {
	return s.err
}

// Close discards any segments not yet read.
func (s *segmentStream) Close() error {
	for !s.done {
		s.Next()
	}
	return nil
}
