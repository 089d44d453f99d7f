// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stats defines the request model, analysis registry, and
// stdin-to-stdout pipeline shared by every analysis endpoint.
//
// The boundary contract is uniform: one JSON document on stdin holding a
// tabular "data" field plus analysis-specific parameters; one JSON
// document on stdout on success; {"error": "..."} on stderr and exit
// status 1 on any failure.
package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. Field names in messages
// come from json tags so errors reference what the caller actually sent.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Row is one record of the caller-supplied table.
type Row map[string]any

// Table holds the ordered rows of the request's 'data' field.
type Table struct {
	rows []Row
}

// NewTable wraps rows in a Table.
func NewTable(rows []Row) *Table {
	return &Table{rows: rows}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// HasColumn reports whether any row carries the named field.
func (t *Table) HasColumn(name string) bool {
	for _, row := range t.rows {
		if _, ok := row[name]; ok {
			return true
		}
	}
	return false
}

// Column returns the numeric values of a column, skipping rows where the
// value is absent or null. Non-numeric, non-null values are an error.
func (t *Table) Column(name string) ([]float64, error) {
	if !t.HasColumn(name) {
		return nil, fmt.Errorf("%w: column %q not present in 'data'", ErrBadParameter, name)
	}
	out := make([]float64, 0, len(t.rows))
	for i, row := range t.rows {
		v, ok := row[name]
		if !ok || v == nil {
			continue
		}
		f, ok := Number(v)
		if !ok {
			return nil, fmt.Errorf("%w: column %q row %d is not numeric", ErrBadParameter, name, i)
		}
		out = append(out, f)
	}
	return out, nil
}

// Columns returns several numeric columns with listwise deletion: a row
// contributes only if every named column has a numeric value in it.
func (t *Table) Columns(names ...string) ([][]float64, error) {
	for _, name := range names {
		if !t.HasColumn(name) {
			return nil, fmt.Errorf("%w: column %q not present in 'data'", ErrBadParameter, name)
		}
	}
	out := make([][]float64, len(names))
	for i := range out {
		out[i] = make([]float64, 0, len(t.rows))
	}
	row := make([]float64, len(names))
	for _, r := range t.rows {
		complete := true
		for j, name := range names {
			v, ok := r[name]
			if !ok || v == nil {
				complete = false
				break
			}
			f, ok := Number(v)
			if !ok {
				complete = false
				break
			}
			row[j] = f
		}
		if !complete {
			continue
		}
		for j := range names {
			out[j] = append(out[j], row[j])
		}
	}
	return out, nil
}

// StringColumn returns a column's values stringified, skipping nulls.
func (t *Table) StringColumn(name string) ([]string, error) {
	if !t.HasColumn(name) {
		return nil, fmt.Errorf("%w: column %q not present in 'data'", ErrBadParameter, name)
	}
	out := make([]string, 0, len(t.rows))
	for _, row := range t.rows {
		v, ok := row[name]
		if !ok || v == nil {
			continue
		}
		out = append(out, stringify(v))
	}
	return out, nil
}

// Grouped splits a numeric column by the values of a grouping column.
// Group order follows first appearance in the table.
func (t *Table) Grouped(valueCol, groupCol string) (map[string][]float64, []string, error) {
	if !t.HasColumn(valueCol) {
		return nil, nil, fmt.Errorf("%w: column %q not present in 'data'", ErrBadParameter, valueCol)
	}
	if !t.HasColumn(groupCol) {
		return nil, nil, fmt.Errorf("%w: column %q not present in 'data'", ErrBadParameter, groupCol)
	}
	groups := make(map[string][]float64)
	var order []string
	for _, row := range t.rows {
		gv, ok := row[groupCol]
		if !ok || gv == nil {
			continue
		}
		vv, ok := row[valueCol]
		if !ok || vv == nil {
			continue
		}
		f, ok := Number(vv)
		if !ok {
			continue
		}
		key := stringify(gv)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], f)
	}
	if len(groups) == 0 {
		return nil, nil, fmt.Errorf("%w: no complete rows for %q grouped by %q",
			ErrInsufficientData, valueCol, groupCol)
	}
	return groups, order, nil
}

// Value returns the raw cell value for a row and column.
func (t *Table) Value(row int, col string) (any, bool) {
	if row < 0 || row >= len(t.rows) {
		return nil, false
	}
	v, ok := t.rows[row][col]
	return v, ok
}

// Number coerces a JSON cell value to float64. Accepts numbers and
// numeric strings; everything else fails. It is the single coercion
// every analysis uses, so a value means the same thing in every
// endpoint.
func Number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// stringify renders a cell value as a group label. Whole-number floats
// drop the trailing ".0" so 3.0 and "3" land in the same group.
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return fmt.Sprint(v)
}

// Request is the decoded stdin payload: the data table plus the raw
// document for per-analysis parameter binding. It lives for exactly one
// invocation.
type Request struct {
	Table *Table

	raw []byte
}

// DecodeRequest reads a single JSON document and extracts the 'data'
// table. The table may be empty; analyses that need rows call
// RequireData.
func DecodeRequest(r io.Reader) (*Request, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	var doc struct {
		Data []Row `json:"data"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return &Request{Table: NewTable(doc.Data), raw: raw}, nil
}

// NewRequest builds a request directly from rows and parameters.
// Intended for tests.
func NewRequest(rows []Row, params map[string]any) (*Request, error) {
	doc := make(map[string]any, len(params)+1)
	for k, v := range params {
		doc[k] = v
	}
	doc["data"] = rows
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return &Request{Table: NewTable(rows), raw: raw}, nil
}

// RequireData returns the table or a descriptive error if it is empty.
func (r *Request) RequireData() (*Table, error) {
	if r.Table == nil || r.Table.Len() == 0 {
		return nil, fmt.Errorf("%w: request must include a non-empty 'data' array", ErrMissingData)
	}
	return r.Table, nil
}

// Bind unmarshals the top-level payload into an analysis-specific
// parameter struct and validates it. Validation failures carry the
// offending json field name, e.g. `missing 'variables'`.
func (r *Request) Bind(params any) error {
	if err := json.Unmarshal(r.raw, params); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if err := validate.Struct(params); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s", ErrBadParameter, describeFieldError(verrs[0]))
		}
		return fmt.Errorf("%w: %v", ErrBadParameter, err)
	}
	return nil
}

// describeFieldError turns a validator error into the deterministic,
// descriptive message the boundary contract promises.
func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("missing %q", fe.Field())
	case "min", "gte":
		return fmt.Sprintf("%q must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%q must be at most %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%q must be greater than %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%q must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%q failed %q validation", fe.Field(), fe.Tag())
	}
}
