package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/progrium/whisper-transcribe/config"
	"github.com/progrium/whisper-transcribe/output"
	"github.com/progrium/whisper-transcribe/transcriber"
	"github.com/progrium/whisper-transcribe/whisper"
)

type flags struct {
	configFile       string
	model            string
	device           string
	computeType      string
	language         string
	task             string
	beamSize         int
	noVAD            bool
	noWordTimestamps bool
	initialPrompt    string
	output           string
	formats          []string
	logLevel         string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	go func() {
		// a second interrupt kills the process
		<-ctx.Done()
		stop()
	}()
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("transcribe: failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	var log *slog.Logger
	var env config.Env

	cmd := &cobra.Command{
		Use:   "transcribe AUDIO",
		Short: "Transcribe audio files with faster-whisper",
		Long: `Transcribe an audio file with a faster-whisper model and write the
transcript as text, JSON, CBOR or SRT/VTT subtitles.

Environment:
  WHISPER_PYTHON     Python interpreter with faster-whisper installed
  WHISPER_CACHE_DIR  model download directory
  WHISPER_CONFIG     default config file (YAML or TOML)
  LOG_LEVEL          debug, info, warn or error
  LOG_FORMAT         text or json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
			env, err = config.ParseEnv()
			if err != nil {
				return err
			}
			level := env.LogLevel
			if f.logLevel != "" {
				level = f.logLevel
			}
			log, err = config.NewLogger(os.Stderr, level, env.LogFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(log)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd, args[0], &f, env, log)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	pf.StringVarP(&f.output, "output", "o", "", "output directory (default: next to the input)")
	pf.StringSliceVar(&f.formats, "formats", []string{"txt", "json"}, "output formats: "+formatList())

	fl := cmd.Flags()
	fl.StringVarP(&f.configFile, "config", "c", "", "config file (.yaml, .yml or .toml)")
	fl.StringVarP(&f.model, "model", "m", "large-v3", "model size: "+strings.Join(whisper.ModelSizes, ", "))
	fl.StringVar(&f.device, "device", "cuda", "inference device: "+strings.Join(whisper.Devices, ", "))
	fl.StringVar(&f.computeType, "compute-type", "", "compute type (default: float16 on cuda, int8 on cpu)")
	fl.StringVarP(&f.language, "language", "l", "", "source language (default: auto-detect)")
	fl.StringVar(&f.task, "task", "transcribe", "task: "+strings.Join(whisper.Tasks, ", "))
	fl.IntVar(&f.beamSize, "beam-size", 5, "beam size")
	fl.BoolVar(&f.noVAD, "no-vad", false, "disable voice activity detection")
	fl.BoolVar(&f.noWordTimestamps, "no-word-timestamps", false, "disable word level timestamps")
	fl.StringVar(&f.initialPrompt, "initial-prompt", "", "prompt for the first window")

	cmd.AddCommand(newRenderCmd(&f, &log))
	return cmd
}

func formatList() string {
	var names []string
	for _, f := range output.Formats() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

// resolveConfig layers defaults, the config file, the environment and
// explicitly set flags, in that order.
func resolveConfig(cmd *cobra.Command, f *flags, env config.Env) (config.File, error) {
	cfg := config.Default()
	path := f.configFile
	if path == "" {
		path = env.Config
	}
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv(env)

	changed := cmd.Flags().Changed
	if changed("model") {
		cfg.Model.Size = f.model
	}
	if changed("device") {
		cfg.Model.Device = f.device
	}
	if changed("compute-type") {
		cfg.Model.ComputeType = f.computeType
	}
	if changed("language") {
		cfg.Decode.Language = f.language
	}
	if changed("task") {
		cfg.Decode.Task = f.task
	}
	if changed("beam-size") {
		cfg.Decode.BeamSize = f.beamSize
	}
	if changed("no-vad") {
		cfg.Decode.VADFilter = !f.noVAD
	}
	if changed("no-word-timestamps") {
		cfg.Decode.WordTimestamps = !f.noWordTimestamps
	}
	if changed("initial-prompt") {
		cfg.Decode.InitialPrompt = f.initialPrompt
	}
	if changed("output") {
		cfg.Output.Dir = f.output
	}
	if changed("formats") {
		cfg.Output.Formats = f.formats
	}
	return cfg, cfg.Validate()
}

func runTranscribe(cmd *cobra.Command, audioPath string, f *flags, env config.Env, log *slog.Logger) error {
	ctx := cmd.Context()
	cfg, err := resolveConfig(cmd, f, env)
	if err != nil {
		return err
	}

	model, err := whisper.Load(ctx, cfg.Model, log)
	if err != nil {
		return err
	}
	defer model.Close()

	loader := cfg.Loader()
	loader.Logger = log
	t := &transcriber.Transcriber{
		Loader: loader,
		Engine: model,
		Logger: log,
	}
	result, written, err := t.TranscribeFile(ctx, audioPath, transcriber.FileOptions{
		OutputDir: cfg.Output.Dir,
		Formats:   cfg.Output.Formats,
		Options:   cfg.Decode,
	})
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), result, written)
	return nil
}
