package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/progrium/whisper-transcribe/output"
	"github.com/progrium/whisper-transcribe/transcriber"
)

// newRenderCmd re-renders a stored JSON or CBOR transcript into other
// formats without loading a model.
func newRenderCmd(f *flags, log **slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "render TRANSCRIPT",
		Short: "Write other formats from a saved .json or .cbor transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args[0], f, *log)
		},
	}
}

func runRender(cmd *cobra.Command, path string, f *flags, log *slog.Logger) error {
	if _, err := output.ParseFormats(f.formats); err != nil {
		return err
	}
	result, err := output.ReadResult(path)
	if err != nil {
		return err
	}

	dir := f.output
	if dir == "" {
		dir = filepath.Dir(path)
	}
	// name outputs after the original audio so they line up with the
	// files written by transcribe
	base := result.AudioFile
	if base == "" {
		base = strings.TrimSuffix(filepath.Base(path), "_transcript"+filepath.Ext(path))
	}
	written, err := transcriber.WriteAll(cmd.Context(), log, result, dir, base, f.formats)
	if err != nil {
		return err
	}
	for _, p := range written {
		fmt.Fprintln(cmd.OutOrStdout(), pathStyle.Render(p))
	}
	return nil
}
