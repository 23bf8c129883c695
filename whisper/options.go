package whisper

import (
	"errors"
	"fmt"
	"slices"

	"github.com/progrium/whisper-transcribe/transcript"
)

var ErrInvalidOptions = errors.New("invalid options")

var (
	ModelSizes = []string{"tiny", "base", "small", "medium", "large-v2", "large-v3"}
	Devices    = []string{"cuda", "cpu"}
	Tasks      = []string{"transcribe", "translate"}
)

type VADParameters struct {
	Threshold            float64 `json:"threshold" yaml:"threshold" toml:"threshold"`
	MinSpeechDurationMs  int     `json:"min_speech_duration_ms" yaml:"min_speech_duration_ms" toml:"min_speech_duration_ms"`
	MaxSpeechDurationS   float64 `json:"max_speech_duration_s" yaml:"max_speech_duration_s" toml:"max_speech_duration_s"`
	MinSilenceDurationMs int     `json:"min_silence_duration_ms" yaml:"min_silence_duration_ms" toml:"min_silence_duration_ms"`
	SpeechPadMs          int     `json:"speech_pad_ms" yaml:"speech_pad_ms" toml:"speech_pad_ms"`
}

// Options are the decoding parameters passed to the model for one
// transcription. Empty Language, InitialPrompt and Prefix mean "unset".
type Options struct {
	Language                  string        `json:"language" yaml:"language" toml:"language"`
	Task                      string        `json:"task" yaml:"task" toml:"task"`
	BeamSize                  int           `json:"beam_size" yaml:"beam_size" toml:"beam_size"`
	BestOf                    int           `json:"best_of" yaml:"best_of" toml:"best_of"`
	Patience                  float64       `json:"patience" yaml:"patience" toml:"patience"`
	LengthPenalty             float64       `json:"length_penalty" yaml:"length_penalty" toml:"length_penalty"`
	RepetitionPenalty         float64       `json:"repetition_penalty" yaml:"repetition_penalty" toml:"repetition_penalty"`
	NoRepeatNgramSize         int           `json:"no_repeat_ngram_size" yaml:"no_repeat_ngram_size" toml:"no_repeat_ngram_size"`
	Temperature               []float64     `json:"temperature" yaml:"temperature" toml:"temperature"`
	CompressionRatioThreshold float64       `json:"compression_ratio_threshold" yaml:"compression_ratio_threshold" toml:"compression_ratio_threshold"`
	LogProbThreshold          float64       `json:"log_prob_threshold" yaml:"log_prob_threshold" toml:"log_prob_threshold"`
	NoSpeechThreshold         float64       `json:"no_speech_threshold" yaml:"no_speech_threshold" toml:"no_speech_threshold"`
	ConditionOnPreviousText   bool          `json:"condition_on_previous_text" yaml:"condition_on_previous_text" toml:"condition_on_previous_text"`
	PromptResetOnTemperature  float64       `json:"prompt_reset_on_temperature" yaml:"prompt_reset_on_temperature" toml:"prompt_reset_on_temperature"`
	InitialPrompt             string        `json:"initial_prompt" yaml:"initial_prompt" toml:"initial_prompt"`
	Prefix                    string        `json:"prefix" yaml:"prefix" toml:"prefix"`
	SuppressBlank             bool          `json:"suppress_blank" yaml:"suppress_blank" toml:"suppress_blank"`
	SuppressTokens            []int         `json:"suppress_tokens" yaml:"suppress_tokens" toml:"suppress_tokens"`
	WithoutTimestamps         bool          `json:"without_timestamps" yaml:"without_timestamps" toml:"without_timestamps"`
	MaxInitialTimestamp       float64       `json:"max_initial_timestamp" yaml:"max_initial_timestamp" toml:"max_initial_timestamp"`
	WordTimestamps            bool          `json:"word_timestamps" yaml:"word_timestamps" toml:"word_timestamps"`
	PrependPunctuations       string        `json:"prepend_punctuations" yaml:"prepend_punctuations" toml:"prepend_punctuations"`
	AppendPunctuations        string        `json:"append_punctuations" yaml:"append_punctuations" toml:"append_punctuations"`
	VADFilter                 bool          `json:"vad_filter" yaml:"vad_filter" toml:"vad_filter"`
	VADParameters             VADParameters `json:"vad_parameters" yaml:"vad_parameters" toml:"vad_parameters"`
}

// DefaultOptions returns the high quality decoding defaults. Every call
// builds fresh slices so callers may modify the result freely.
func DefaultOptions() Options {
	return Options{
		Task:                      "transcribe",
		BeamSize:                  5,
		BestOf:                    5,
		Patience:                  1.0,
		LengthPenalty:             1.0,
		RepetitionPenalty:         1.0,
		NoRepeatNgramSize:         0,
		Temperature:               []float64{0.0, 0.2, 0.4, 0.6, 0.8, 1.0},
		CompressionRatioThreshold: 2.4,
		LogProbThreshold:          -1.0,
		NoSpeechThreshold:         0.6,
		ConditionOnPreviousText:   true,
		PromptResetOnTemperature:  0.5,
		SuppressBlank:             true,
		SuppressTokens:            []int{-1},
		MaxInitialTimestamp:       1.0,
		WordTimestamps:            true,
		PrependPunctuations:       "\"'¿([{-",
		AppendPunctuations:        "\"'.。,，!！?？:：\")}]、",
		VADFilter:                 true,
		VADParameters: VADParameters{
			Threshold:            0.5,
			MinSpeechDurationMs:  250,
			MaxSpeechDurationS:   60,
			MinSilenceDurationMs: 100,
			SpeechPadMs:          30,
		},
	}
}

// Clone returns a deep copy of o.
func (o Options) Clone() Options {
	o.Temperature = slices.Clone(o.Temperature)
	o.SuppressTokens = slices.Clone(o.SuppressTokens)
	return o
}

func (o Options) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(slices.Contains(Tasks, o.Task), "task %q must be one of %v", o.Task, Tasks)
	check(o.BeamSize >= 1, "beam_size must be at least 1, got %d", o.BeamSize)
	check(o.BestOf >= 1, "best_of must be at least 1, got %d", o.BestOf)
	check(o.Patience > 0, "patience must be positive, got %v", o.Patience)
	check(o.LengthPenalty > 0, "length_penalty must be positive, got %v", o.LengthPenalty)
	check(o.RepetitionPenalty > 0, "repetition_penalty must be positive, got %v", o.RepetitionPenalty)
	check(o.NoRepeatNgramSize >= 0, "no_repeat_ngram_size must not be negative, got %d", o.NoRepeatNgramSize)
	check(len(o.Temperature) > 0, "temperature needs at least one value")
	for _, t := range o.Temperature {
		check(t >= 0, "temperature values must not be negative, got %v", t)
	}
	check(o.CompressionRatioThreshold > 0, "compression_ratio_threshold must be positive, got %v", o.CompressionRatioThreshold)
	check(o.NoSpeechThreshold >= 0 && o.NoSpeechThreshold <= 1, "no_speech_threshold must be within [0,1], got %v", o.NoSpeechThreshold)
	check(o.MaxInitialTimestamp >= 0, "max_initial_timestamp must not be negative, got %v", o.MaxInitialTimestamp)

	v := o.VADParameters
	check(v.Threshold >= 0 && v.Threshold <= 1, "vad_parameters.threshold must be within [0,1], got %v", v.Threshold)
	check(v.MinSpeechDurationMs >= 0, "vad_parameters.min_speech_duration_ms must not be negative")
	check(v.MaxSpeechDurationS > 0, "vad_parameters.max_speech_duration_s must be positive")
	check(v.MinSilenceDurationMs >= 0, "vad_parameters.min_silence_duration_ms must not be negative")
	check(v.SpeechPadMs >= 0, "vad_parameters.speech_pad_ms must not be negative")

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidOptions, errors.Join(errs...))
}

// ModelConfig selects and places the model. It is fixed for the lifetime
// of a loaded Model.
type ModelConfig struct {
	Size           string `yaml:"size" toml:"size"`
	Device         string `yaml:"device" toml:"device"`
	ComputeType    string `yaml:"compute_type" toml:"compute_type"`
	CPUThreads     int    `yaml:"cpu_threads" toml:"cpu_threads"`
	NumWorkers     int    `yaml:"num_workers" toml:"num_workers"`
	DownloadRoot   string `yaml:"download_root" toml:"download_root"`
	LocalFilesOnly bool   `yaml:"local_files_only" toml:"local_files_only"`
	// SuppressWarnings names the Python warning categories silenced in the
	// helper, e.g. FutureWarning.
	SuppressWarnings []string `yaml:"suppress_warnings" toml:"suppress_warnings"`
	// Python is the interpreter that has faster-whisper installed.
	Python string `yaml:"python" toml:"python"`
}

func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Size:             "large-v3",
		Device:           "cuda",
		NumWorkers:       1,
		SuppressWarnings: []string{"FutureWarning", "UserWarning"},
		Python:           "python3",
	}
}

// EffectiveComputeType is ComputeType, or the usual precision for Device
// when unset: float16 on GPUs, int8 on CPUs.
func (c ModelConfig) EffectiveComputeType() string {
	if c.ComputeType != "" {
		return c.ComputeType
	}
	if c.Device == "cpu" {
		return "int8"
	}
	return "float16"
}

func (c ModelConfig) Validate() error {
	var errs []error
	if !slices.Contains(ModelSizes, c.Size) {
		errs = append(errs, fmt.Errorf("model size %q must be one of %v", c.Size, ModelSizes))
	}
	if !slices.Contains(Devices, c.Device) {
		errs = append(errs, fmt.Errorf("device %q must be one of %v", c.Device, Devices))
	}
	if c.CPUThreads < 0 {
		errs = append(errs, fmt.Errorf("cpu_threads must not be negative, got %d", c.CPUThreads))
	}
	if c.NumWorkers < 1 {
		errs = append(errs, fmt.Errorf("num_workers must be at least 1, got %d", c.NumWorkers))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidOptions, errors.Join(errs...))
}

// Settings is the subset of the configuration echoed into results.
func Settings(cfg ModelConfig, o Options) transcript.Settings {
	return transcript.Settings{
		BeamSize:       o.BeamSize,
		BestOf:         o.BestOf,
		Temperature:    slices.Clone(o.Temperature),
		WordTimestamps: o.WordTimestamps,
		VADFilter:      o.VADFilter,
		Device:         cfg.Device,
		ComputeType:    cfg.EffectiveComputeType(),
	}
}
