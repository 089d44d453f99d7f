// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import "errors"

// Sentinel errors for the stats service. Every analysis failure wraps
// one of these; the runner reports the flattened message to the caller.
var (
	// ErrInvalidJSON indicates the stdin payload was not valid JSON.
	ErrInvalidJSON = errors.New("invalid JSON payload")

	// ErrMissingData indicates the payload lacks a usable 'data' array.
	ErrMissingData = errors.New("missing 'data'")

	// ErrBadParameter indicates a missing or out-of-range parameter.
	ErrBadParameter = errors.New("invalid parameter")

	// ErrInsufficientData indicates the sample is too small for the
	// requested procedure.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegenerate indicates a numerically degenerate input such as a
	// singular design matrix or zero variance.
	ErrDegenerate = errors.New("degenerate input")

	// ErrNoConverge indicates an iterative procedure hit its iteration
	// cap without converging.
	ErrNoConverge = errors.New("did not converge")
)
