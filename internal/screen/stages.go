package screen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/xtalpipe/screen/internal/dials"
	"github.com/xtalpipe/screen/internal/model"
)

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func completed(ctx context.Context, runtimeSeconds float64) {
	slog.InfoContext(ctx, fmt.Sprintf("Successfully completed (%.1f sec)", runtimeSeconds))
}

// importData hands the input paths to the import tool and verifies the
// datablock sidecar appeared.
func (s *Session) importData(ctx context.Context, files []string) error {
	slog.InfoContext(ctx, "\nImporting data...")
	result := s.run(ctx, s.cfg.Tools.Import, files...)
	if result.ExitCode != 0 {
		slog.WarnContext(ctx, fmt.Sprintf("Failed with exit code %d", result.ExitCode))
		return fmt.Errorf("import failed with exit code %d", result.ExitCode)
	}
	if !fileExists(dials.Datablock) {
		// The tool reported success, so either the paths named nothing
		// usable or the output went elsewhere.
		slog.WarnContext(ctx, "Could not import images. Do the specified images exist at that location?")
		return fmt.Errorf("import did not produce %s", dials.Datablock)
	}
	completed(ctx, result.Runtime.Seconds())
	return nil
}

// countProcessors stores the probed processor count for later nproc hints.
func (s *Session) countProcessors(ctx context.Context) error {
	result := s.run(ctx, s.cfg.Tools.ProcessorCount)
	if result.ExitCode != 0 {
		slog.WarnContext(ctx, fmt.Sprintf(
			"Could not determine number of available processors. Error code %d", result.ExitCode))
		return fmt.Errorf("processor probe failed with exit code %d", result.ExitCode)
	}
	s.nproc = strings.TrimSpace(result.Stdout)
	return nil
}

// findSpots runs spot finding, with extra tool parameters on the stricter
// retry pass, and logs the per-image spot count summary.
func (s *Session) findSpots(ctx context.Context, extra ...string) error {
	slog.InfoContext(ctx, "\nSpot finding...")
	args := append([]string{s.jsonFile, "nproc=" + s.nproc}, extra...)
	result := s.run(ctx, s.cfg.Tools.FindSpots, args...)
	if result.ExitCode != 0 {
		slog.WarnContext(ctx, fmt.Sprintf("Failed with exit code %d", result.ExitCode))
		return fmt.Errorf("spot finding failed with exit code %d", result.ExitCode)
	}

	slog.InfoContext(ctx, separator)
	summary := s.run(ctx, s.cfg.Tools.SpotCounts, s.jsonFile, dials.StrongSpots)
	if summary.ExitCode == 0 {
		slog.InfoContext(ctx, strings.TrimRight(summary.Stdout, "\n"))
	} else {
		slog.DebugContext(ctx, fmt.Sprintf(
			"spot count summary unavailable, exit code %d", summary.ExitCode))
	}
	slog.InfoContext(ctx, separator)
	completed(ctx, result.Runtime.Seconds())
	return nil
}

// index tries the fixed strategy sequence and stops at the first success.
// It reports false when every strategy failed, leaving escalation to the
// caller; an error is returned only when a successful run produced
// unparseable output.
func (s *Session) index(ctx context.Context) (bool, error) {
	base := []string{s.jsonFile, dials.StrongSpots, "indexing.nproc=" + s.nproc}
	attempts := []struct {
		message string
		extra   []string
	}{
		{"Indexing", nil},
		{"Retrying with max_cell constraint", []string{"max_cell=20"}},
		{"Retrying with 1D FFT", []string{"indexing.method=fft1d"}},
	}

	for _, attempt := range attempts {
		slog.InfoContext(ctx, "\n"+attempt.message+"...")
		result := s.run(ctx, s.cfg.Tools.Index, append(base, attempt.extra...)...)
		if result.ExitCode != 0 {
			slog.WarnContext(ctx, fmt.Sprintf("Failed with exit code %d", result.ExitCode))
			continue
		}

		solution, err := dials.ParseIndexSolution(result.Stdout)
		if err != nil {
			return false, fmt.Errorf("indexing output: %w", err)
		}
		slog.InfoContext(ctx, fmt.Sprintf("Found primitive solution: %s (%s) using %d reflections",
			solution.SpaceGroup, solution.UnitCell, solution.Reflections))
		completed(ctx, result.Runtime.Seconds())
		return true, nil
	}
	return false, nil
}

// refine runs refinement and promotes the refined files over the canonical
// names, keeping the previous ones under an unrefined suffix. The rename
// sequence is not transactional; an interruption midway leaves a mixed
// state.
func (s *Session) refine(ctx context.Context) error {
	slog.InfoContext(ctx, "\nRefining...")
	result := s.run(ctx, s.cfg.Tools.Refine, dials.Experiments, dials.Indexed)
	if result.ExitCode != 0 {
		slog.WarnContext(ctx, fmt.Sprintf("Failed with exit code %d", result.ExitCode))
		slog.WarnContext(ctx, "Giving up.")
		return fmt.Errorf("refinement failed with exit code %d", result.ExitCode)
	}
	slog.InfoContext(ctx, fmt.Sprintf("Successfully refined (%.1f sec)", result.Runtime.Seconds()))

	renames := [][2]string{
		{dials.Experiments, dials.ExperimentsBackup},
		{dials.Indexed, dials.IndexedBackup},
		{dials.RefinedExperiments, dials.Experiments},
		{dials.RefinedIndexed, dials.Indexed},
	}
	for _, r := range renames {
		if err := os.Rename(r[0], r[1]); err != nil {
			return fmt.Errorf("promoting refined output: %w", err)
		}
	}
	return nil
}

// createProfileModel runs profile modelling and, on success, reads the scan
// metadata back from the profile-annotated experiment file.
func (s *Session) createProfileModel(ctx context.Context) (bool, error) {
	slog.InfoContext(ctx, "\nCreating profile model...")
	result := s.run(ctx, s.cfg.Tools.CreateProfileModel, dials.Experiments, dials.Indexed)
	if result.ExitCode != 0 {
		slog.WarnContext(ctx, fmt.Sprintf("Failed with exit code %d", result.ExitCode))
		return false, nil
	}

	el, err := model.LoadExperimentList(dials.ProfileExperiments)
	if err != nil {
		return false, err
	}
	meta, err := el.Metadata()
	if err != nil {
		return false, fmt.Errorf("%s: %w", dials.ProfileExperiments, err)
	}
	s.meta = meta
	s.haveMeta = true

	slog.InfoContext(ctx, fmt.Sprintf("%d images, %s deg. oscillation, sigma_m=%.3f",
		meta.NumImages,
		strconv.FormatFloat(meta.Oscillation, 'g', -1, 64),
		meta.SigmaM))
	completed(ctx, result.Runtime.Seconds())
	return true, nil
}

// report builds the html report.
func (s *Session) report(ctx context.Context) error {
	slog.InfoContext(ctx, "\nCreating report...")
	result := s.run(ctx, s.cfg.Tools.Report, dials.ProfileExperiments, dials.Indexed)
	if result.ExitCode != 0 {
		slog.WarnContext(ctx, fmt.Sprintf("Failed with exit code %d", result.ExitCode))
		return fmt.Errorf("report failed with exit code %d", result.ExitCode)
	}
	completed(ctx, result.Runtime.Seconds())
	return nil
}

// predict runs reflection prediction; failure only downgrades the output.
func (s *Session) predict(ctx context.Context) bool {
	slog.InfoContext(ctx, "\nPredicting reflections...")
	result := s.run(ctx, s.cfg.Tools.Predict, dials.ProfileExperiments)
	if result.ExitCode != 0 {
		slog.WarnContext(ctx, fmt.Sprintf("Failed with exit code %d", result.ExitCode))
		return false
	}
	slog.InfoContext(ctx, "To view predicted reflections run:")
	slog.InfoContext(ctx, fmt.Sprintf("  dials.image_viewer %s %s",
		dials.ProfileExperiments, dials.Predicted))
	completed(ctx, result.Runtime.Seconds())
	return true
}

// refineBravais evaluates the candidate bravais settings and logs the
// resulting table verbatim.
func (s *Session) refineBravais(ctx context.Context) error {
	slog.InfoContext(ctx, "\nRefining bravais settings...")
	result := s.run(ctx, s.cfg.Tools.RefineBravais, dials.Experiments, dials.Indexed)
	if result.ExitCode != 0 {
		slog.WarnContext(ctx, fmt.Sprintf("Failed with exit code %d", result.ExitCode))
		return fmt.Errorf("bravais refinement failed with exit code %d", result.ExitCode)
	}
	table, err := dials.ParseBravaisTable(result.Stdout)
	if err != nil {
		return fmt.Errorf("bravais refinement output: %w", err)
	}
	slog.InfoContext(ctx, table)
	completed(ctx, result.Runtime.Seconds())
	return nil
}
