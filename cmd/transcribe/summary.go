package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/progrium/whisper-transcribe/transcript"
)

const previewLen = 50

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	pathStyle  = lipgloss.NewStyle().Faint(true)
)

func printSummary(w io.Writer, r *transcript.Result, written []string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Transcription completed!"))
	fmt.Fprintf(w, "%s %s...\n", labelStyle.Render("Text:"), preview(r.Text, previewLen))
	fmt.Fprintf(w, "%s %s (confidence: %.3f)\n", labelStyle.Render("Language:"), r.Language, r.LanguageProbability)
	fmt.Fprintf(w, "%s %.2fs\n", labelStyle.Render("Duration:"), r.Duration)
	for _, p := range written {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render("Saved:"), pathStyle.Render(p))
	}
}

// preview returns the first n characters of s.
func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
