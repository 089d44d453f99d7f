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

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianStats/pkg/jsonsafe"
	"github.com/AleutianAI/AleutianStats/pkg/logging"
)

// Execute runs one analysis invocation end to end: decode stdin, run,
// normalize, encode to stdout. The returned value is the process exit
// status: 0 on success, 1 on any failure.
//
// All failures are reported identically as {"error": "<message>"} on
// stderr; stdout stays silent. There is no retry and no partial result.
func Execute(ctx context.Context, a Analysis, stdin io.Reader, stdout, stderr io.Writer, logger *logging.Logger) int {
	log := logger.With("run_id", uuid.NewString(), "analysis", a.Name())

	req, err := DecodeRequest(stdin)
	if err != nil {
		return fail(stderr, log, err)
	}

	start := time.Now()
	results, err := a.Run(ctx, req)
	if err != nil {
		return fail(stderr, log, err)
	}
	if results == nil {
		return fail(stderr, log, fmt.Errorf("analysis %q produced no results", a.Name()))
	}

	enc := json.NewEncoder(stdout)
	if err := enc.Encode(jsonsafe.Normalize(results)); err != nil {
		return fail(stderr, log, fmt.Errorf("encode results: %w", err))
	}

	log.Info("analysis complete",
		"rows", req.Table.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return 0
}

// fail writes the uniform error document to stderr and returns exit
// status 1.
func fail(stderr io.Writer, log *logging.Logger, err error) int {
	log.Error("analysis failed", "error", err.Error())
	_ = json.NewEncoder(stderr).Encode(map[string]string{"error": err.Error()})
	return 1
}
