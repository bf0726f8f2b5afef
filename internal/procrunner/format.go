package procrunner

import (
	"fmt"
	"sort"
	"strings"
)

// FormatBlock renders a key-value mapping as an indented block for
// diagnostic logging. Keys are emitted in sorted order; continuation lines
// of multi-line values are aligned under the first line of the value.
func FormatBlock(kv map[string]string) string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.ReplaceAll(kv[k], "\n", "\n"+strings.Repeat(" ", 4+len(k)))
		lines = append(lines, fmt.Sprintf("  %s: %s", k, v))
	}
	return "{\n" + strings.Join(lines, "\n") + "\n}"
}

// Format renders the result as a diagnostic block.
func (r Result) Format() string {
	return FormatBlock(map[string]string{
		"exitcode": fmt.Sprintf("%d", r.ExitCode),
		"stdout":   strings.TrimRight(r.Stdout, "\n"),
		"stderr":   strings.TrimRight(r.Stderr, "\n"),
		"runtime":  fmt.Sprintf("%.1f", r.Runtime.Seconds()),
	})
}
