package nzb

import "errors"

// ErrNoSegments is returned for an NZB without a single usable segment.
var ErrNoSegments = errors.New("nzb has no usable segments")
