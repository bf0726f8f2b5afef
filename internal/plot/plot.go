// Package plot renders the intensity histogram on a text terminal by piping
// a plot script to gnuplot and thickening its single-point markers into
// contiguous bars.
package plot

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/xtalpipe/screen/internal/procrunner"
)

const marker = '*'

// TermSize probes the terminal attached to stdout, falling back to 80x25.
func TermSize() (columns, rows int) {
	columns, rows = 80, 25
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return columns, rows
	}
	c, r, err := term.GetSize(fd)
	if err != nil || c <= 0 || r <= 0 {
		return columns, rows
	}
	return c, r
}

// Script builds the gnuplot input for a dumb-terminal box plot of the
// histogram, points listed in ascending bucket order.
func Script(bins map[int]int64, columns, rows int) string {
	lines := []string{
		fmt.Sprintf("set term dumb %d %d", columns, rows-2),
		"set title 'Spot intensity distribution'",
		"set xlabel '% of maximum'",
		"set ylabel 'Number of observed pixels'",
		"set logscale y",
		"set boxwidth 1.0",
		"set xtics out nomirror",
		"set ytics out",
		"plot '-' using 1:2 title '' with boxes",
	}

	buckets := make([]int, 0, len(bins))
	for b := range bins {
		buckets = append(buckets, b)
	}
	sort.Ints(buckets)
	for _, b := range buckets {
		lines = append(lines, fmt.Sprintf("%f %d", float64(b), bins[b]))
	}
	lines = append(lines, "e")
	return strings.Join(lines, "\n") + "\n"
}

// FillBars post-processes gnuplot's dumb-terminal output. Once a column has
// shown a marker it is forced to the marker on every following line, until
// a line without any marker resets the tracked columns. This turns the
// single-point box tops into filled vertical bars.
func FillBars(output string) string {
	active := make(map[int]bool)
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		cols := markerColumns(line)
		if len(cols) == 0 {
			active = make(map[int]bool)
			continue
		}
		for _, c := range cols {
			active[c] = true
		}
		b := []byte(line)
		for c := range active {
			if c < len(b) {
				b[c] = marker
			}
		}
		lines[i] = string(b)
	}
	return strings.Join(lines, "\n")
}

func markerColumns(line string) []int {
	var cols []int
	for i := 0; i < len(line); i++ {
		if line[i] == marker {
			cols = append(cols, i)
		}
	}
	return cols
}

// Render pipes the plot script to gnuplot and returns the bar-filled chart.
func Render(ctx context.Context, runner procrunner.Runner, gnuplot string,
	timeout time.Duration, bins map[int]int64) (string, error) {

	columns, rows := TermSize()
	cmd := procrunner.Command{
		Path:    gnuplot,
		Stdin:   Script(bins, columns, rows),
		Timeout: timeout,
	}
	result := runner.Run(ctx, cmd)
	if result.ExitCode != 0 {
		return "", fmt.Errorf("gnuplot exited with code %d", result.ExitCode)
	}
	return FillBars(result.Stdout), nil
}
