package output

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/progrium/whisper-transcribe/transcript"
)

var ErrUnknownFormat = errors.New("unknown output format")

type Format string

const (
	FormatText Format = "txt"
	FormatJSON Format = "json"
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatCBOR Format = "cbor"
)

// Writer serializes a result to w.
type Writer func(w io.Writer, r *transcript.Result) error

var writers = map[Format]Writer{
	FormatText: Text,
	FormatJSON: JSON,
	FormatSRT:  SRT,
	FormatVTT:  VTT,
	FormatCBOR: CBOR,
}

// Formats lists every known format in a stable order.
func Formats() []Format {
	return []Format{FormatText, FormatJSON, FormatSRT, FormatVTT, FormatCBOR}
}

// Lookup returns the writer for f.
func Lookup(f Format) (Writer, bool) {
	w, ok := writers[f]
	return w, ok
}

// Suffix is the file extension used for f.
func (f Format) Suffix() string {
	return string(f)
}

// ParseFormats validates a list of format tags, accepting comma separated
// entries. Unknown tags are an error.
func ParseFormats(tags []string) ([]Format, error) {
	var out []Format
	for _, tag := range tags {
		for _, p := range strings.Split(tag, ",") {
			p = strings.ToLower(strings.TrimSpace(p))
			if p == "" {
				continue
			}
			f := Format(p)
			if _, ok := writers[f]; !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, p)
			}
			out = append(out, f)
		}
	}
	return out, nil
}

// Filename is the output file name for audioPath in dir.
func Filename(dir, audioPath string, f Format) string {
	name := filepath.Base(audioPath)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" {
		// dotfiles like ".hidden" have no extension to strip
		base = name
	}
	return filepath.Join(dir, fmt.Sprintf("%s_transcript.%s", base, f.Suffix()))
}

// WriteFile creates or truncates path and writes r to it. The parent
// directory must already exist.
func WriteFile(path string, write Writer, r *transcript.Result) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	bw := bufio.NewWriter(f)
	if err := write(bw, r); err != nil {
		return err
	}
	return bw.Flush()
}

func Text(w io.Writer, r *transcript.Result) error {
	_, err := io.WriteString(w, r.Text)
	return err
}

func JSON(w io.Writer, r *transcript.Result) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func CBOR(w io.Writer, r *transcript.Result) error {
	return cbor.NewEncoder(w).Encode(r)
}

func SRT(w io.Writer, r *transcript.Result) error {
	for i, seg := range r.Segments {
		_, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n",
			i+1,
			transcript.FormatTimestamp(seg.Start, transcript.StyleSRT),
			transcript.FormatTimestamp(seg.End, transcript.StyleSRT),
			strings.TrimSpace(seg.Text),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func VTT(w io.Writer, r *transcript.Result) error {
	if _, err := io.WriteString(w, "WEBVTT\n\n"); err != nil {
		return err
	}
	for _, seg := range r.Segments {
		_, err := fmt.Fprintf(w, "%s --> %s\n%s\n\n",
			transcript.FormatTimestamp(seg.Start, transcript.StyleVTT),
			transcript.FormatTimestamp(seg.End, transcript.StyleVTT),
			strings.TrimSpace(seg.Text),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadResult loads a result previously written in the json or cbor format,
// chosen by the file extension.
func ReadResult(path string) (*transcript.Result, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r transcript.Result
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(b, &r)
	case ".cbor":
		err = cbor.Unmarshal(b, &r)
	default:
		return nil, fmt.Errorf("%w: cannot read %s", ErrUnknownFormat, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &r, nil
}
