package model

import (
	"errors"
)

var (
	ErrNoScan    = errors.New("experiment list has no scan")
	ErrNoProfile = errors.New("experiment list has no profile model")
	ErrNoBins    = errors.New("overload data has no bins")
)
