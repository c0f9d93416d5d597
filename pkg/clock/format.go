package clock

import "fmt"

// FormatRemaining renders a millisecond remainder as a display string,
// e.g. "29:45", with tenths shown under ten seconds ("9.3").
func FormatRemaining(ms int64) string {
	if ms < 0 {
		ms = 0
	}

	totalSeconds := ms / 1000
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60

	if ms < 10_000 {
		tenths := (ms % 1000) / 100
		return fmt.Sprintf("%d.%d", totalSeconds, tenths)
	}

	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
