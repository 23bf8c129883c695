package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// decodeFFmpeg asks ffmpeg for raw little-endian float32 mono samples at
// rate. Used for containers beep has no decoder for (m4a, mp4, webm, ...).
func decodeFFmpeg(ctx context.Context, bin, path string, rate int) ([]float32, error) {
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%w: %s (ffmpeg not available: %v)", ErrUnsupported, path, err)
	}

	cmd := exec.CommandContext(ctx, bin,
		"-nostdin", "-v", "error",
		"-i", path,
		"-f", "f32le", "-ac", "1", "-ar", strconv.Itoa(rate),
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	samples := make([]float32, stdout.Len()/4)
	if err := binary.Read(&stdout, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("ffmpeg: read samples: %w", err)
	}
	return samples, nil
}
