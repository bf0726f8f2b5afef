package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// ExperimentList mirrors the parts of a dials experiment descriptor file
// this program needs: scan geometry and the refined profile model.
type ExperimentList struct {
	Scans    []Scan    `json:"scan"`
	Profiles []Profile `json:"profile"`
}

type Scan struct {
	ImageRange  [2]int     `json:"image_range"`
	Oscillation [2]float64 `json:"oscillation"`
}

// NumImages is the inclusive size of the scan's image range.
func (s Scan) NumImages() int {
	return s.ImageRange[1] - s.ImageRange[0] + 1
}

// OscillationWidth is the per-image oscillation increment in degrees.
func (s Scan) OscillationWidth() float64 {
	return s.Oscillation[1]
}

type Profile struct {
	SigmaM float64 `json:"sigma_m"`
}

// ScanMetadata is the subset of the experiment model consumed by the
// intensity check.
type ScanMetadata struct {
	NumImages   int
	Oscillation float64
	SigmaM      float64
}

// Metadata extracts the first scan and profile. Both must be present, the
// file is only read back after profile modelling succeeded.
func (e ExperimentList) Metadata() (ScanMetadata, error) {
	if len(e.Scans) == 0 {
		return ScanMetadata{}, ErrNoScan
	}
	if len(e.Profiles) == 0 {
		return ScanMetadata{}, ErrNoProfile
	}
	return ScanMetadata{
		NumImages:   e.Scans[0].NumImages(),
		Oscillation: e.Scans[0].OscillationWidth(),
		SigmaM:      e.Profiles[0].SigmaM,
	}, nil
}

func LoadExperimentList(path string) (ExperimentList, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ExperimentList{}, fmt.Errorf("reading experiment list: %w", err)
	}
	var el ExperimentList
	if err := json.Unmarshal(b, &el); err != nil {
		return ExperimentList{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return el, nil
}
