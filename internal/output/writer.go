// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package output writes the JSON and CSV reports produced by every export
// component, and builds the filenames they share.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Name builds the "<cluster>-<kind>-<YYYYMMDD>.<ext>" filename shared by
// every report this tool writes.
func Name(cluster, kind, ext string, t time.Time) string {
	return fmt.Sprintf("%s-%s-%s.%s", cluster, kind, t.Format("20060102"), ext)
}

// WriteJSON marshals v with a two-space indent and writes it to path,
// creating parent directories as needed. Non-ASCII characters are never
// escaped, matching json.dump(..., ensure_ascii=False) in the tool this
// repo replaces.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("output: create directory for %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return nil
}

// WriteCSV writes rows to path as CSV, creating parent directories as
// needed. When headers is nil, the header row is the first row's keys in
// Go map iteration order, which is not deterministic. A nil/empty rows
// with nil headers writes nothing, not
// even an empty file — matching the "nothing to write" short-circuit the
// original tool takes.
func WriteCSV(path string, rows []map[string]any, headers []string) error {
	if len(rows) == 0 && len(headers) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("output: create directory for %s: %w", path, err)
	}

	cols := headers
	if cols == nil {
		cols = keysInOrder(rows[0])
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(cols); err != nil {
		return fmt.Errorf("output: write header for %s: %w", path, err)
	}
	for _, row := range rows {
		record := make([]string, len(cols))
		for i, col := range cols {
			record[i] = cell(row[col])
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("output: write row for %s: %w", path, err)
		}
	}
	w.Flush()
	return w.Error()
}

func keysInOrder(row map[string]any) []string {
	// Go map iteration order is randomized; callers that need a
	// deterministic column order must pass explicit headers. This fallback
	// exists only for ad-hoc rows where order genuinely does not matter.
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	return cols
}

func cell(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
