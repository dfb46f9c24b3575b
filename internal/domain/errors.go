package domain

import "errors"

// ErrNoServers is returned when work is submitted before any server exists.
var ErrNoServers = errors.New("no server registered")

// ErrNoSegments indicates an input without anything to fetch
var ErrNoSegments = errors.New("input has no segments")
