package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Overload is the bin histogram emitted by the pixel overload counter.
type Overload struct {
	BinCount    int     `json:"bin_count"`
	Bins        []int64 `json:"bins"`
	ScaleFactor float64 `json:"scale_factor"`
}

func LoadOverload(path string) (Overload, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Overload{}, fmt.Errorf("reading overload data: %w", err)
	}
	var o Overload
	if err := json.Unmarshal(b, &o); err != nil {
		return Overload{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if o.BinCount > len(o.Bins) {
		return Overload{}, fmt.Errorf("%s: bin_count %d exceeds %d bins",
			path, o.BinCount, len(o.Bins))
	}
	if o.BinCount == 0 {
		return Overload{}, ErrNoBins
	}
	return o, nil
}
