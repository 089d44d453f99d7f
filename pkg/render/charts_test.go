// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHistogram verifies a PNG data URI is produced.
func TestHistogram(t *testing.T) {
	uri, err := Histogram([]float64{1, 2, 2, 3, 3, 3, 4, 4, 5}, 5, "dist", "x")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
	assert.Greater(t, len(uri), 100, "PNG payload should not be empty")
}

// TestHistogram_Empty verifies empty input is an error, not a panic.
func TestHistogram_Empty(t *testing.T) {
	_, err := Histogram(nil, 5, "dist", "x")
	assert.Error(t, err)
}

// TestFitScatter verifies scatter-with-line rendering.
func TestFitScatter(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	y := []float64{2.1, 3.9, 6.2, 7.8}
	uri, err := FitScatter(x, y, 0.1, 1.95, "fit", "x", "y")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
}

// TestClusterScatter_MismatchedLengths verifies input checking.
func TestClusterScatter_MismatchedLengths(t *testing.T) {
	_, err := ClusterScatter([]float64{1, 2}, []float64{1}, []int{0, 1}, "", "x", "y")
	assert.Error(t, err)
}

// TestStepCurves verifies survival-style step rendering.
func TestStepCurves(t *testing.T) {
	uri, err := StepCurves([]Series{
		{Name: "a", X: []float64{0, 1, 2}, Y: []float64{1, 0.8, 0.5}},
		{Name: "b", X: []float64{0, 1, 2}, Y: []float64{1, 0.9, 0.7}},
	}, "survival", "t", "S(t)")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
}
