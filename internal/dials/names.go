// Package dials knows the file names of the external toolchain's artifacts
// and how to parse the free-form stdout of the tools that report results
// only as text.
package dials

// Artifacts handed from one tool to the next through the working directory.
const (
	Datablock          = "datablock.json"
	StrongSpots        = "strong.pickle"
	AllSpots           = "all_spots.pickle"
	Experiments        = "experiments.json"
	Indexed            = "indexed.pickle"
	ExperimentsBackup  = "experiments.unrefined.json"
	IndexedBackup      = "indexed.unrefined.pickle"
	RefinedExperiments = "refined_experiments.json"
	RefinedIndexed     = "refined.pickle"
	ProfileExperiments = "experiments_with_profile_model.json"
	Predicted          = "predicted.pickle"
	OverloadData       = "overload.json"
)
