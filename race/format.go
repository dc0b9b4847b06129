package race

import "fmt"

// FormatMs renders a millisecond lap time as mm:ss.mmm, or "--" for no
// value, matching what the public display expects.
func FormatMs(ms *int64) string {
	if ms == nil {
		return "--"
	}
	m := *ms / 60000
	s := (*ms % 60000) / 1000
	rest := *ms % 1000
	return fmt.Sprintf("%02d:%02d.%03d", m, s, rest)
}
