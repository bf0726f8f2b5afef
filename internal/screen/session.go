// Package screen drives the screening workflow: a linear pipeline of
// external tool invocations with scripted retries for indexing and profile
// modelling. Stages report errors upward; the exit code is decided once, in
// main.
package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/xtalpipe/screen/internal/dials"
	"github.com/xtalpipe/screen/internal/model"
	"github.com/xtalpipe/screen/internal/procrunner"
)

const separator = "------------------------------------------------------------"

const indexingGuidance = `
Could not find an indexing solution. You may want to have a look
at the reciprocal space by running:

  dials.reciprocal_lattice_viewer datablock.json all_spots.pickle

or, to only include stronger spots:

  dials.reciprocal_lattice_viewer datablock.json strong.pickle
`

const profileGuidance = `
The identified indexing solution may not be correct. You may want to have a look
at the reciprocal space by running:

  dials.reciprocal_lattice_viewer experiments.json indexed.pickle
`

// Session accumulates the state of one screening run: the active input
// file, the probed processor count and, once profile modelling succeeded,
// the scan metadata the intensity check depends on.
type Session struct {
	cfg    model.Config
	runner procrunner.Runner

	jsonFile string
	nproc    string
	meta     model.ScanMetadata
	haveMeta bool
}

func New(cfg model.Config, runner procrunner.Runner) *Session {
	return &Session{cfg: cfg, runner: runner}
}

// run invokes one external tool and logs the command line and the captured
// result block on the debug stream.
func (s *Session) run(ctx context.Context, tool string, args ...string) procrunner.Result {
	cmd := procrunner.Command{Path: s.cfg.Resolve(tool), Args: args}
	slog.DebugContext(ctx, "running "+cmd.Line())
	result := s.runner.Run(ctx, cmd)
	slog.DebugContext(ctx, "result = "+result.Format())
	return result
}

// Run executes the whole pipeline. A nil return means every stage
// succeeded; any error is fatal for the session.
func (s *Session) Run(ctx context.Context, args []string) error {
	if err := s.countProcessors(ctx); err != nil {
		return err
	}

	if len(args) == 1 && strings.HasSuffix(args[0], ".json") {
		s.jsonFile = args[0]
	} else {
		if err := s.importData(ctx, args); err != nil {
			return err
		}
		s.jsonFile = dials.Datablock
	}

	if err := s.findSpots(ctx); err != nil {
		return err
	}

	indexed, err := s.index(ctx)
	if err != nil {
		return err
	}
	if !indexed {
		slog.InfoContext(ctx, "\nRetrying for stronger spots only...")
		// The strong spot table is renamed aside and not restored if the
		// stricter retry fails as well; the give-up guidance below points
		// the operator at both files. See DESIGN.md before changing this.
		if err := os.Rename(dials.StrongSpots, dials.AllSpots); err != nil {
			return fmt.Errorf("setting aside %s: %w", dials.StrongSpots, err)
		}
		if err := s.findSpots(ctx, "sigma_strong=15"); err != nil {
			return err
		}
		indexed, err = s.index(ctx)
		if err != nil {
			return err
		}
		if !indexed {
			slog.WarnContext(ctx, "Giving up.")
			slog.InfoContext(ctx, indexingGuidance)
			return errors.New("indexing failed")
		}
	}

	modelled, err := s.createProfileModel(ctx)
	if err != nil {
		return err
	}
	if !modelled {
		slog.InfoContext(ctx, "\nRefining model to attempt to increase number of valid spots...")
		if err := s.refine(ctx); err != nil {
			return err
		}
		modelled, err = s.createProfileModel(ctx)
		if err != nil {
			return err
		}
		if !modelled {
			slog.WarnContext(ctx, "Giving up.")
			slog.InfoContext(ctx, profileGuidance)
			return errors.New("profile modelling failed")
		}
	}

	if err := s.report(ctx); err != nil {
		return err
	}
	s.predict(ctx)
	if err := s.checkIntensities(ctx); err != nil {
		return err
	}
	return s.refineBravais(ctx)
}
