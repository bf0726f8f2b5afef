package screen_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xtalpipe/screen/internal/model"
	"github.com/xtalpipe/screen/internal/procrunner"
	"github.com/xtalpipe/screen/internal/screen"
)

const indexStdout = `RMSDs by experiment:
model 1 (531 reflections):
Crystal:
    Unit cell: (57.784, 57.800, 150.002, 90.000, 90.000, 90.000)
    Space group: P 41 21 2
`

const bravaisStdout = `Chiral space groups corresponding to each Bravais lattice:
---------------------------------------------
Solution Metric fit  rmsd #spots lattice
---------------------------------------------
*      5     0.0251 0.061    531      tP
*      1     0.0000 0.060    531      aP
---------------------------------------------
`

const experimentsFile = `{
  "scan": [
    {"image_range": [1, 250], "oscillation": [82.0, 0.15]}
  ],
  "profile": [
    {"sigma_m": 0.352}
  ]
}`

// fakeRunner answers tool invocations from canned per-path result queues.
// The last result of a queue is sticky; tools without a queue succeed with
// empty output.
type fakeRunner struct {
	calls   []procrunner.Command
	results map[string][]procrunner.Result
}

func (f *fakeRunner) Run(_ context.Context, cmd procrunner.Command) procrunner.Result {
	f.calls = append(f.calls, cmd)
	queue := f.results[cmd.Path]
	if len(queue) == 0 {
		return procrunner.Result{}
	}
	result := queue[0]
	if len(queue) > 1 {
		f.results[cmd.Path] = queue[1:]
	}
	return result
}

func (f *fakeRunner) callsTo(path string) []procrunner.Command {
	var out []procrunner.Command
	for _, c := range f.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func ok(stdout string) procrunner.Result {
	return procrunner.Result{ExitCode: 0, Stdout: stdout}
}

func failed(code int) procrunner.Result {
	return procrunner.Result{ExitCode: code}
}

// captureLog replaces the default logger for the duration of one test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
}

// chdir switches into dir for the duration of one test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(prev)) })
}

// happyRunner is a fake answering every stage of a clean pipeline run.
func happyRunner() *fakeRunner {
	return &fakeRunner{results: map[string][]procrunner.Result{
		"libtbx.show_number_of_processors": {ok("8\n")},
		"dials.spot_counts_per_image":      {ok("1: 320 spots\n2: 317 spots\n")},
		"dials.index":                      {ok(indexStdout)},
		"dials.refine_bravais_settings":    {ok(bravaisStdout)},
		"gnuplot":                          {ok("  *  \n  *  \n")},
	}}
}

func setupWorkdir(t *testing.T, scaleFactor string) {
	t.Helper()
	chdir(t, t.TempDir())
	writeFile(t, "datablock.json", `{"kind": "datablock"}`)
	writeFile(t, "experiments_with_profile_model.json", experimentsFile)
	writeFile(t, "overload.json",
		`{"bin_count": 60, "bins": [`+zeros(50)+`500, `+zeros(9)+`0], "scale_factor": `+scaleFactor+`}`)
}

// zeros renders n "0, " list elements.
func zeros(n int) string {
	var b bytes.Buffer
	for i := 0; i < n; i++ {
		b.WriteString("0, ")
	}
	return b.String()
}

func TestRunFullPipeline(t *testing.T) {
	log := captureLog(t)
	setupWorkdir(t, "0.0001")
	fake := happyRunner()

	session := screen.New(model.DefaultConfig(), fake)
	err := session.Run(context.Background(), []string{"datablock.json"})
	require.NoError(t, err)

	// one invocation per stage, in pipeline order
	var tools []string
	for _, c := range fake.calls {
		tools = append(tools, c.Path)
	}
	require.Equal(t, []string{
		"libtbx.show_number_of_processors",
		"dials.find_spots",
		"dials.spot_counts_per_image",
		"dials.index",
		"dials.create_profile_model",
		"dials.report",
		"dials.predict",
		"xia2.overload",
		"gnuplot",
		"dials.refine_bravais_settings",
	}, tools)

	spotArgs := fake.callsTo("dials.find_spots")[0].Args
	require.Contains(t, spotArgs, "datablock.json")
	require.Contains(t, spotArgs, "nproc=8")

	require.Contains(t, log.String(), "Found primitive solution: P 41 21 2")
	require.Contains(t, log.String(), "250 images")
}

func TestRunIndexingRetriesInOrderThenGivesUp(t *testing.T) {
	log := captureLog(t)
	setupWorkdir(t, "0.0001")
	writeFile(t, "strong.pickle", "table")

	fake := happyRunner()
	fake.results["dials.index"] = []procrunner.Result{failed(1)}

	session := screen.New(model.DefaultConfig(), fake)
	err := session.Run(context.Background(), []string{"datablock.json"})
	require.Error(t, err)

	// three strategies per pass, two passes, no fourth strategy
	indexCalls := fake.callsTo("dials.index")
	require.Len(t, indexCalls, 6)
	base := []string{"datablock.json", "strong.pickle", "indexing.nproc=8"}
	require.Equal(t, base, indexCalls[0].Args)
	require.Equal(t, append(append([]string{}, base...), "max_cell=20"), indexCalls[1].Args)
	require.Equal(t, append(append([]string{}, base...), "indexing.method=fft1d"), indexCalls[2].Args)

	// stricter spot finding on the second pass
	spotCalls := fake.callsTo("dials.find_spots")
	require.Len(t, spotCalls, 2)
	require.Contains(t, spotCalls[1].Args, "sigma_strong=15")

	// the strong spot table was set aside and stays that way
	require.FileExists(t, "all_spots.pickle")
	require.NoFileExists(t, "strong.pickle")

	// profile modelling is never attempted, the guidance block is logged
	require.Empty(t, fake.callsTo("dials.create_profile_model"))
	require.Contains(t, log.String(), "Could not find an indexing solution")
	require.Contains(t, log.String(), "dials.reciprocal_lattice_viewer")
}

func TestRunProfileModelEscalatesThroughRefinement(t *testing.T) {
	captureLog(t)
	setupWorkdir(t, "0.0001")
	writeFile(t, "experiments.json", "{}")
	writeFile(t, "indexed.pickle", "table")
	writeFile(t, "refined_experiments.json", "{}")
	writeFile(t, "refined.pickle", "table")

	fake := happyRunner()
	fake.results["dials.create_profile_model"] = []procrunner.Result{failed(1), ok("")}

	session := screen.New(model.DefaultConfig(), fake)
	err := session.Run(context.Background(), []string{"datablock.json"})
	require.NoError(t, err)

	require.Len(t, fake.callsTo("dials.refine"), 1)
	require.Len(t, fake.callsTo("dials.create_profile_model"), 2)

	// refined files promoted over the canonical names, originals kept aside
	require.FileExists(t, "experiments.unrefined.json")
	require.FileExists(t, "indexed.unrefined.pickle")
	require.FileExists(t, "experiments.json")
	require.NoFileExists(t, "refined_experiments.json")
}

func TestRunProfileModelGivesUpAfterRefinement(t *testing.T) {
	log := captureLog(t)
	setupWorkdir(t, "0.0001")
	writeFile(t, "experiments.json", "{}")
	writeFile(t, "indexed.pickle", "table")
	writeFile(t, "refined_experiments.json", "{}")
	writeFile(t, "refined.pickle", "table")

	fake := happyRunner()
	fake.results["dials.create_profile_model"] = []procrunner.Result{failed(1)}

	session := screen.New(model.DefaultConfig(), fake)
	err := session.Run(context.Background(), []string{"datablock.json"})
	require.Error(t, err)

	require.Empty(t, fake.callsTo("dials.report"))
	require.Contains(t, log.String(), "The identified indexing solution may not be correct")
}

func TestRunSaturationWarningIsNotFatal(t *testing.T) {
	log := captureLog(t)
	// scale factor large enough to push the rescaled maximum beyond 100
	setupWorkdir(t, "0.02")
	fake := happyRunner()

	session := screen.New(model.DefaultConfig(), fake)
	err := session.Run(context.Background(), []string{"datablock.json"})
	require.NoError(t, err)

	require.Contains(t, log.String(), "Strongest pixel reaches")
	require.Contains(t, log.String(), "level=WARN")
	// bravais refinement still ran after the warning
	require.Len(t, fake.callsTo("dials.refine_bravais_settings"), 1)
}

func TestRunImportFailureIsFatal(t *testing.T) {
	captureLog(t)
	chdir(t, t.TempDir())

	fake := happyRunner()
	fake.results["dials.import"] = []procrunner.Result{failed(1)}

	session := screen.New(model.DefaultConfig(), fake)
	err := session.Run(context.Background(), []string{"img_0001.cbf"})
	require.Error(t, err)
	require.Empty(t, fake.callsTo("dials.find_spots"))
}

func TestRunImportWithoutDatablockIsFatal(t *testing.T) {
	log := captureLog(t)
	chdir(t, t.TempDir())

	// import reports success but datablock.json never appears
	fake := happyRunner()

	session := screen.New(model.DefaultConfig(), fake)
	err := session.Run(context.Background(), []string{"img_0001.cbf"})
	require.Error(t, err)
	require.Contains(t, log.String(), "Could not import images")
}

func TestRunImportProducesDatablock(t *testing.T) {
	captureLog(t)
	setupWorkdir(t, "0.0001")

	fake := happyRunner()
	session := screen.New(model.DefaultConfig(), fake)
	err := session.Run(context.Background(), []string{"img_0001.cbf", "img_0002.cbf"})
	require.NoError(t, err)

	importCalls := fake.callsTo("dials.import")
	require.Len(t, importCalls, 1)
	require.Equal(t, []string{"img_0001.cbf", "img_0002.cbf"}, importCalls[0].Args)

	// subsequent stages operate on the produced datablock
	require.Contains(t, fake.callsTo("dials.find_spots")[0].Args, "datablock.json")
}
