package transcript

import (
	"fmt"
	"math"
	"strings"
)

// Style selects the subtitle dialect a timestamp is rendered for.
type Style int

const (
	StyleSRT Style = iota
	StyleVTT
)

// FormatTimestamp renders seconds as HH:MM:SS,mmm (SRT) or HH:MM:SS.mmm
// (VTT). Hours are not capped and grow past two digits for long audio.
func FormatTimestamp(seconds float64, style Style) string {
	hours := int64(math.Floor(seconds / 3600))
	minutes := int64(math.Floor(math.Mod(seconds, 3600) / 60))
	secs := math.Mod(seconds, 60)

	ts := fmt.Sprintf("%02d:%02d:%06.3f", hours, minutes, secs)
	if style == StyleSRT {
		return strings.Replace(ts, ".", ",", 1)
	}
	return ts
}
