package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/progrium/whisper-transcribe/audio"
	"github.com/progrium/whisper-transcribe/output"
	"github.com/progrium/whisper-transcribe/whisper"
)

var ErrUnknownKey = errors.New("unknown config key")

// Env holds the settings read from the process environment.
type Env struct {
	Python    string `env:"WHISPER_PYTHON"`
	CacheDir  string `env:"WHISPER_CACHE_DIR"`
	Config    string `env:"WHISPER_CONFIG"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

func ParseEnv() (Env, error) {
	return env.ParseAs[Env]()
}

type Audio struct {
	SampleRate int  `yaml:"sample_rate" toml:"sample_rate"`
	Normalize  bool `yaml:"normalize" toml:"normalize"`
	// FFmpeg is the fallback decoder binary. Empty looks it up on PATH,
	// "-" disables the fallback.
	FFmpeg string `yaml:"ffmpeg" toml:"ffmpeg"`
}

type Output struct {
	Dir     string   `yaml:"dir" toml:"dir"`
	Formats []string `yaml:"formats" toml:"formats"`
}

// File is the layout of a config file. Keys left out keep their defaults.
type File struct {
	Model  whisper.ModelConfig `yaml:"model" toml:"model"`
	Audio  Audio               `yaml:"audio" toml:"audio"`
	Decode whisper.Options     `yaml:"decode" toml:"decode"`
	Output Output              `yaml:"output" toml:"output"`
}

func Default() File {
	return File{
		Model: whisper.DefaultModelConfig(),
		Audio: Audio{
			SampleRate: audio.DefaultSampleRate,
			Normalize:  true,
		},
		Decode: whisper.DefaultOptions(),
		Output: Output{
			Formats: []string{string(output.FormatText), string(output.FormatJSON)},
		},
	}
}

// Load reads a YAML or TOML config file on top of Default. Unknown keys
// are an error.
func Load(path string) (File, error) {
	f := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, &f)
	case ".toml":
		err = decodeTOML(data, &f)
	default:
		err = fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return f, fmt.Errorf("config %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return f, fmt.Errorf("config %s: %w", path, err)
	}
	return f, nil
}

func decodeYAML(data []byte, f *File) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err := dec.Decode(f)
	if errors.Is(err, io.EOF) {
		// empty file
		return nil
	}
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		for _, msg := range typeErr.Errors {
			if strings.Contains(msg, "not found in type") {
				return fmt.Errorf("%w: %w", ErrUnknownKey, err)
			}
		}
	}
	return err
}

func decodeTOML(data []byte, f *File) error {
	md, err := toml.Decode(string(data), f)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%w: %s", ErrUnknownKey, strings.Join(keys, ", "))
	}
	return nil
}

func (f File) Validate() error {
	var errs []error
	if err := f.Model.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := f.Decode.Validate(); err != nil {
		errs = append(errs, err)
	}
	if f.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", f.Audio.SampleRate))
	}
	if _, err := output.ParseFormats(f.Output.Formats); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ApplyEnv lets environment settings override the interpreter and fill in
// the model cache directory.
func (f *File) ApplyEnv(e Env) {
	if e.Python != "" {
		f.Model.Python = e.Python
	}
	if e.CacheDir != "" && f.Model.DownloadRoot == "" {
		f.Model.DownloadRoot = e.CacheDir
	}
}

// Loader builds the audio loader described by the audio section.
func (f File) Loader() *audio.Loader {
	l := audio.NewLoader()
	l.SampleRate = f.Audio.SampleRate
	l.Normalize = f.Audio.Normalize
	l.FFmpeg = f.Audio.FFmpeg
	return l
}
