// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package jsonsafe converts analysis result trees into values that
// encoding/json can serialize without error.
//
// Statistical procedures routinely produce NaN and ±Inf (zero-variance
// ratios, degenerate regressions, empty cells). The repository-wide policy
// is to surface those to callers as JSON null rather than as an error:
// a missing value is a legitimate statistical outcome, not a failure.
//
// Normalize is a total function: it never returns an error and never
// panics on the value shapes produced by the analysis packages (primitives,
// slices, and string-keyed maps, arbitrarily nested).
package jsonsafe

import (
	"math"
	"reflect"
	"sort"
)

// Normalize returns a JSON-safe copy of v.
//
// Rules, applied recursively:
//   - NaN and ±Inf (float32 or float64) become nil.
//   - Finite floats stay float64; integer types become int64.
//   - Booleans, strings, and nil pass through.
//   - Slices and arrays become []any; string-keyed maps become
//     map[string]any.
//   - mat.Matrix-like values must be flattened by the caller before
//     normalization (see MatrixRows).
//
// Normalize is idempotent: applying it to its own output yields an
// equal tree.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool, string:
		return x
	case float64:
		return normFloat(x)
	case float32:
		return normFloat(float64(x))
	case int:
		return int64(x)
	case int64:
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = Normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = Normalize(val)
		}
		return out
	case []float64:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normFloat(val)
		}
		return out
	case [][]float64:
		out := make([]any, len(x))
		for i, row := range x {
			out[i] = Normalize(row)
		}
		return out
	case []int:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = int64(val)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = val
		}
		return out
	}
	return normalizeReflect(reflect.ValueOf(v))
}

// normFloat maps non-finite values to nil per the repository policy.
func normFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// normalizeReflect handles the long tail of numeric kinds and container
// types not covered by the fast paths in Normalize.
func normalizeReflect(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Invalid:
		return nil
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		// Values beyond MaxInt64 would wrap negative as int64.
		if u := rv.Uint(); u <= math.MaxInt64 {
			return int64(u)
		}
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return normFloat(rv.Float())
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	}
	// Structs, channels, funcs: nothing in the result trees produces these.
	return nil
}

// SortedSet converts an unordered string set into a sorted slice so that
// identical inputs always serialize to identical output.
func SortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
