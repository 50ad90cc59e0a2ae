// trainctl/errors.go
// Copyright(c) 2025-2026 vobc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package trainctl

import "errors"

// Errors used by the trainctl package. None of these are fatal to a
// running controller: requests that fail are dropped and the update cycle
// carries on.
var (
	ErrBlockNotInLayout     = errors.New("Block not present in track layout")
	ErrInvalidGains         = errors.New("PI gains must be nonnegative")
	ErrInvalidSpeedLevel    = errors.New("Commanded speed level must be between 0 and 3")
	ErrQueueFull            = errors.New("Lookahead queue is at capacity")
	ErrTooManyInitialBlocks = errors.New("More initial blocks than lookahead capacity")
	ErrUnknownBlock         = errors.New("No current or lookahead block with that number")
)
