package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/xtalpipe/screen/internal/dials"
	"github.com/xtalpipe/screen/internal/model"
	"github.com/xtalpipe/screen/internal/plot"
)

// MosaicityFactor is the intensity correction term sqrt(pi)*sigma_m *
// erf(osc/(2*sigma_m)). It grows monotonically with sigma_m towards the
// oscillation width; when the erf argument vanishes (mosaic spread
// dominating the oscillation) the erf(x)/x expansion makes the factor the
// oscillation width itself. A non-positive sigma_m falls back to that bound
// so the derived scale stays finite and positive.
func MosaicityFactor(sigmaM, oscillation float64) float64 {
	if sigmaM <= 0 {
		return oscillation
	}
	return math.Sqrt(math.Pi) * sigmaM * math.Erf(oscillation/(2*sigmaM))
}

// Rescale multiplies every bucket by scale with integer truncation, summing
// counts when distinct buckets collide on the same rescaled bucket. The
// zero bucket is dropped from the result.
func Rescale(hist map[int]int64, scale float64) map[int]int64 {
	rescaled := make(map[int]int64, len(hist))
	for bucket, count := range hist {
		rescaled[int(float64(bucket)*scale)] += count
	}
	delete(rescaled, 0)
	return rescaled
}

// histogramFromOverload keeps the nonzero bins as a sparse histogram and
// sums bucket*count over all of them.
func histogramFromOverload(o model.Overload) (map[int]int64, int64) {
	hist := make(map[int]int64)
	var countSum int64
	for b := 0; b < o.BinCount; b++ {
		if o.Bins[b] > 0 {
			hist[b] = o.Bins[b]
			countSum += int64(b) * o.Bins[b]
		}
	}
	return hist, countSum
}

func formatHistogram(hist map[int]int64) string {
	buckets := make([]int, 0, len(hist))
	for b := range hist {
		buckets = append(buckets, b)
	}
	sort.Ints(buckets)
	parts := make([]string, 0, len(buckets))
	for _, b := range buckets {
		parts = append(parts, fmt.Sprintf("%d:%d", b, hist[b]))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func maxBucket(hist map[int]int64) int {
	first := true
	var max int
	for b := range hist {
		if first || b > max {
			max = b
			first = false
		}
	}
	return max
}

func sumCounts(hist map[int]int64) int64 {
	var sum int64
	for _, c := range hist {
		sum += c
	}
	return sum
}

// checkIntensities runs the overload counter and reports how close the
// strongest pixel comes to the detector count rate limit. Requires the scan
// metadata stored by profile modelling.
func (s *Session) checkIntensities(ctx context.Context) error {
	if !s.haveMeta {
		return errors.New("intensity check requires scan metadata from profile modelling")
	}

	slog.InfoContext(ctx, "\nTesting pixel intensities...")
	result := s.run(ctx, s.cfg.Tools.Overload, s.jsonFile)
	if result.ExitCode != 0 {
		slog.WarnContext(ctx, fmt.Sprintf("Failed with exit code %d", result.ExitCode))
		return fmt.Errorf("intensity check failed with exit code %d", result.ExitCode)
	}

	overload, err := model.LoadOverload(dials.OverloadData)
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Pixel intensity distribution:")
	hist, countSum := histogramFromOverload(overload)
	histCount := sumCounts(hist)

	mosaicity := MosaicityFactor(s.meta.SigmaM, s.meta.Oscillation)
	slog.InfoContext(ctx, fmt.Sprintf("Mosaicity factor: %f", mosaicity))
	scale := 100 * overload.ScaleFactor / mosaicity
	slog.InfoContext(ctx, fmt.Sprintf("Determined scale factor for intensities as %f", scale))
	slog.DebugContext(ctx, "intensity histogram: "+formatHistogram(hist))

	hist = Rescale(hist, scale)
	slog.DebugContext(ctx, "rescaled histogram: "+formatHistogram(hist))

	chart, err := plot.Render(ctx, s.runner, s.cfg.Plot.Gnuplot, s.cfg.Plot.Timeout, hist)
	if err != nil {
		slog.WarnContext(ctx, fmt.Sprintf(
			"Error running gnuplot. Can not plot intensity distribution. %v", err))
	} else {
		slog.InfoContext(ctx, chart)
	}

	histMax := maxBucket(hist)
	text := fmt.Sprintf("Strongest pixel reaches %.1f %% of the detector count rate limit",
		float64(histMax))
	if histMax > 100 {
		slog.WarnContext(ctx, text+"!")
	} else {
		slog.InfoContext(ctx, text)
	}

	if s.meta.NumImages > 0 && histCount%int64(s.meta.NumImages) != 0 {
		slog.WarnContext(ctx, "There may be undetected overloads above the upper bound!")
	}

	slog.InfoContext(ctx, fmt.Sprintf("Total sum of counts in dataset: %d", countSum))
	completed(ctx, result.Runtime.Seconds())
	return nil
}
