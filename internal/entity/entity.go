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

// Package entity fetches and tabulates a period's per-client entity export.
package entity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"nsaudit/internal/client"
	"nsaudit/internal/output"
)

const dateLayout = "2006-01-02"

// Result holds the normalised record list and the flattened CSV rows
// derived from it.
type Result struct {
	Records []map[string]any
	Rows    []map[string]any
	Headers []string
}

// Exporter runs the entity export against a Server client.
type Exporter struct {
	client *client.Client
	log    *zap.SugaredLogger
}

func New(c *client.Client, log *zap.SugaredLogger) *Exporter {
	return &Exporter{client: c, log: log}
}

// Run fetches and normalises the entity export for [start, end]
// (YYYY-MM-DD). An empty result is not an error: it is logged and an
// empty Result is returned so the caller can choose to skip writing.
func (e *Exporter) Run(ctx context.Context, start, end string) (Result, error) {
	if _, err := time.Parse(dateLayout, start); err != nil {
		return Result{}, fmt.Errorf("entity export: invalid start date %q: %w", start, err)
	}
	if _, err := time.Parse(dateLayout, end); err != nil {
		return Result{}, fmt.Errorf("entity export: invalid end date %q: %w", end, err)
	}

	params := map[string]string{
		"start_time": start + "T00:00:00Z",
		"end_time":   end + "T23:59:59Z",
		"format":     "json",
	}
	body, err := e.client.GetRaw(ctx, "sys/internal/counters/activity/export", params, "")
	if err != nil {
		return Result{}, fmt.Errorf("entity export: fetch: %w", err)
	}

	decoded, err := client.DecodeBody(body)
	if err != nil {
		return Result{}, fmt.Errorf("entity export: decode: %w", err)
	}

	records := normalize(decoded)
	if len(records) == 0 {
		e.log.Warnw("entity export returned no records", "start", start, "end", end)
		return Result{}, nil
	}

	headers := recordKeyOrder(body, records[0])
	if !contains(headers, "entity_type") {
		headers = append(headers, "entity_type")
	}
	for i, rec := range records {
		rec["entity_type"] = asString(rec["client_type"])
		rec["namespace_path"] = rewriteRootPath(asString(rec["namespace_id"]), asString(rec["namespace_path"]))
		records[i] = rec
	}

	rows := make([]map[string]any, len(records))
	for i, rec := range records {
		rows[i] = coerceIntegralFloats(rec)
	}

	e.log.Infow("entity export rows", "count", len(records))

	return Result{Records: records, Rows: rows, Headers: headers}, nil
}

// Write emits the normalised JSON and the flattened CSV. A Result with no
// records writes nothing, matching the "emit nothing and warn" contract.
func (e *Exporter) Write(dir, cluster string, t time.Time, result Result) error {
	if len(result.Records) == 0 {
		return nil
	}
	if err := output.WriteJSON(dir+"/"+output.Name(cluster, "entity-export", "json", t), result.Records); err != nil {
		return err
	}
	return output.WriteCSV(dir+"/"+output.Name(cluster, "entity-export", "csv", t), result.Rows, result.Headers)
}

// normalize accepts a JSON array, an object wrapping "data", or a decoded
// NDJSON slice, and returns a uniform list of record maps.
func normalize(raw any) []map[string]any {
	switch v := raw.(type) {
	case []any:
		return toRecords(v)
	case map[string]any:
		if data, ok := v["data"].([]any); ok {
			return toRecords(data)
		}
		return nil
	default:
		return nil
	}
}

func toRecords(items []any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// recordKeyOrder recovers the first record's JSON key order from the raw
// response body: decoding into map[string]any (as normalize does) already
// lost it, since Go randomizes map iteration order by design. body is
// walked with a token-based decoder rather than re-unmarshalled, so the
// source order survives; fallback is used only if body turns out not to
// parse the way records does (should not happen, since records was
// derived from the same body), and sorts the keys instead of guessing at
// an order, to stay deterministic either way.
func recordKeyOrder(body []byte, fallback map[string]any) []string {
	keys, err := firstObjectKeys(body)
	if err != nil {
		keys = make([]string, 0, len(fallback))
		for k := range fallback {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}
	return keys
}

// firstObjectKeys locates the first record object in body - the first
// element of a top-level JSON array, the first element of a "data" array
// inside a wrapping object, or the first line of an NDJSON stream - and
// returns its keys in their original order.
func firstObjectKeys(body []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	var whole any
	if err := json.Unmarshal(trimmed, &whole); err == nil {
		return firstObjectKeysFromValue(trimmed, whole)
	}

	for _, line := range bytes.Split(trimmed, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return objectKeysInOrder(json.NewDecoder(bytes.NewReader(line)))
	}
	return nil, fmt.Errorf("no records found")
}

func firstObjectKeysFromValue(raw []byte, whole any) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	switch whole.(type) {
	case []any:
		if _, err := dec.Token(); err != nil { // consume the opening '['
			return nil, err
		}
		return objectKeysInOrder(dec)

	case map[string]any:
		if _, err := dec.Token(); err != nil { // consume the opening '{'
			return nil, err
		}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := keyTok.(string)
			if key == "data" {
				if _, err := dec.Token(); err != nil { // consume the data array's '['
					return nil, err
				}
				return objectKeysInOrder(dec)
			}
			if err := skipValue(dec); err != nil {
				return nil, err
			}
		}
		return nil, fmt.Errorf("no data field")

	default:
		return nil, fmt.Errorf("unexpected top-level shape %T", whole)
	}
}

// objectKeysInOrder reads dec positioned right before a JSON object and
// returns that object's immediate keys in their original order, leaving
// the decoder just past the object's closing brace.
func objectKeysInOrder(dec *json.Decoder) ([]string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected string key, got %v", keyTok)
		}
		keys = append(keys, key)
		if err := skipValue(dec); err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); err != nil { // consume the closing '}'
		return nil, err
	}
	return keys, nil
}

// skipValue consumes one JSON value (scalar, object, or array) from dec.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '{' && delim != '[') {
		return nil // scalar, already consumed
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func rewriteRootPath(namespaceID, namespacePath string) string {
	if namespaceID == "root" && namespacePath == "" {
		return "root/"
	}
	return namespacePath
}

func coerceIntegralFloats(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			out[k] = int64(f)
			continue
		}
		out[k] = v
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
