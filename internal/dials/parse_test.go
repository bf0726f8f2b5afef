package dials_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xtalpipe/screen/internal/dials"
)

const indexOutput = `dials.index datablock.json strong.pickle

RMSDs by experiment:
model 1 (531 reflections):
Crystal:
    Unit cell: (57.784, 57.800, 150.002, 90.000, 90.000, 90.000)
    Space group: P 41 21 2
Refined crystal models:
`

func TestParseIndexSolution(t *testing.T) {
	t.Parallel()

	t.Run("fixed-form solution block", func(t *testing.T) {
		t.Parallel()
		solution, err := dials.ParseIndexSolution(indexOutput)
		require.NoError(t, err)
		require.Equal(t, 531, solution.Reflections)
		require.Equal(t, "57.784, 57.800, 150.002, 90.000, 90.000, 90.000", solution.UnitCell)
		require.Equal(t, "P 41 21 2", solution.SpaceGroup)
	})

	t.Run("missing block is a typed error", func(t *testing.T) {
		t.Parallel()
		_, err := dials.ParseIndexSolution("no solution in here\n")
		require.ErrorIs(t, err, dials.ErrNoIndexSolution)
	})
}

const bravaisOutput = `Chiral space groups corresponding to each Bravais lattice:
aP: P1
tP: P4 P41
-------------------------------------------------------------------
Solution Metric fit  rmsd  min/max cc #spots lattice      unit_cell
-------------------------------------------------------------------
*      5     0.0251 0.061  0.75/0.83    531      tP  57.78  57.80
*      1     0.0000 0.060  0.79/0.79    531      aP  57.78  57.80
-------------------------------------------------------------------
usually the highest symmetry solution
`

func TestParseBravaisTable(t *testing.T) {
	t.Parallel()

	t.Run("dash-delimited table extracted verbatim", func(t *testing.T) {
		t.Parallel()
		table, err := dials.ParseBravaisTable(bravaisOutput)
		require.NoError(t, err)
		require.Contains(t, table, "Solution Metric fit")
		require.Contains(t, table, "*      5")
		require.Contains(t, table, "*      1")
		// The table starts and ends at a dashed delimiter.
		require.Regexp(t, `^-{3,}`, table)
		require.Regexp(t, `-{3,}$`, table)
	})

	t.Run("missing table is a typed error", func(t *testing.T) {
		t.Parallel()
		_, err := dials.ParseBravaisTable("Failed before printing anything useful\n")
		require.ErrorIs(t, err, dials.ErrNoBravaisTable)
	})
}
