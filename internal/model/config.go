package model

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the external tool table for a screening session. An install
// root, when set, is prepended to every tool name instead of relying on
// whatever installation happens to be on PATH.
type Config struct {
	InstallRoot string `yaml:"install_root"`
	Verbose     bool   `yaml:"verbose"`
	Tools       Tools  `yaml:"tools"`
	Plot        Plot   `yaml:"plot"`
}

type Tools struct {
	Import             string `yaml:"import"`
	FindSpots          string `yaml:"find_spots"`
	SpotCounts         string `yaml:"spot_counts"`
	Index              string `yaml:"index"`
	Refine             string `yaml:"refine"`
	CreateProfileModel string `yaml:"create_profile_model"`
	RefineBravais      string `yaml:"refine_bravais"`
	Report             string `yaml:"report"`
	Predict            string `yaml:"predict"`
	Overload           string `yaml:"overload"`
	ProcessorCount     string `yaml:"processor_count"`
}

type Plot struct {
	Gnuplot string        `yaml:"gnuplot"`
	Timeout time.Duration `yaml:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		Tools: Tools{
			Import:             "dials.import",
			FindSpots:          "dials.find_spots",
			SpotCounts:         "dials.spot_counts_per_image",
			Index:              "dials.index",
			Refine:             "dials.refine",
			CreateProfileModel: "dials.create_profile_model",
			RefineBravais:      "dials.refine_bravais_settings",
			Report:             "dials.report",
			Predict:            "dials.predict",
			Overload:           "xia2.overload",
			ProcessorCount:     "libtbx.show_number_of_processors",
		},
		Plot: Plot{
			Gnuplot: "gnuplot",
			Timeout: 120 * time.Second,
		},
	}
}

// LoadConfig reads a yaml config and fills unset tool names with defaults.
func LoadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	def := DefaultConfig()
	if cfg.Tools.Import == "" {
		cfg.Tools = def.Tools
	}
	if cfg.Plot.Gnuplot == "" {
		cfg.Plot.Gnuplot = def.Plot.Gnuplot
	}
	if cfg.Plot.Timeout == 0 {
		cfg.Plot.Timeout = def.Plot.Timeout
	}
	return cfg, nil
}

// Resolve maps a configured tool name to the path handed to exec. With an
// install root the name is anchored below it, otherwise PATH lookup applies.
func (c Config) Resolve(tool string) string {
	if c.InstallRoot == "" {
		return tool
	}
	return filepath.Join(c.InstallRoot, "bin", tool)
}
