package dials

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrNoIndexSolution = errors.New("no indexing solution found in output")
	ErrNoBravaisTable  = errors.New("no bravais settings table found in output")
)

// The indexing tool reports its solution as a fixed-form block:
//
//	model 1 (1234 reflections):
//	Crystal:
//	    Unit cell: (57.8, 57.8, 150.0, 90.0, 90.0, 90.0)
//	    Space group: P 41 21 2
var indexSolutionRe = regexp.MustCompile(
	`model [0-9]+ \(([0-9]+) [^\n]*\n[^\n]*\n[^\n]*Unit cell: \(([^\n]*)\)\n[^\n]*Space group: ([^\n]*)\n`)

// IndexSolution is the primitive lattice solution reported by indexing.
type IndexSolution struct {
	Reflections int
	UnitCell    string
	SpaceGroup  string
}

// ParseIndexSolution extracts the indexing solution from tool stdout.
func ParseIndexSolution(stdout string) (IndexSolution, error) {
	m := indexSolutionRe.FindStringSubmatch(stdout)
	if m == nil {
		return IndexSolution{}, ErrNoIndexSolution
	}
	refl, err := strconv.Atoi(m[1])
	if err != nil {
		return IndexSolution{}, ErrNoIndexSolution
	}
	return IndexSolution{
		Reflections: refl,
		UnitCell:    strings.TrimSpace(m[2]),
		SpaceGroup:  strings.TrimSpace(m[3]),
	}, nil
}

// The bravais settings report is a dash-delimited table with one header
// line followed by one row per candidate setting.
var bravaisTableRe = regexp.MustCompile(`-{3,}\n[^\n]*\n-{3,}\n(.*\n)*-{3,}`)

// ParseBravaisTable extracts the settings table verbatim from tool stdout.
func ParseBravaisTable(stdout string) (string, error) {
	m := bravaisTableRe.FindString(stdout)
	if m == "" {
		return "", ErrNoBravaisTable
	}
	return m, nil
}
