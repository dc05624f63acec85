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

package client

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// decodeBody decodes a response body as a single JSON value, falling back
// to newline-delimited JSON when the body is a stream of objects rather
// than one well-formed document. This replaces catching a decoder's error
// string for "Extra data" with an explicit peek-first-byte state machine.
func decodeBody(raw []byte) (any, error) {
	trimmed := bytes.TrimLeftFunc(raw, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}

	switch trimmed[0] {
	case '{', '[':
		var v any
		if err := json.Unmarshal(trimmed, &v); err == nil {
			return v, nil
		}
		// Falls through to NDJSON: a top-level object/array that failed to
		// parse whole is most likely several JSON values back to back.
	}

	values, err := decodeNDJSON(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return values, nil
}

// DecodeBody is decodeBody exported for callers outside the package that
// hold a raw response body directly (GetRaw) rather than going through
// Get/Post's own decode step.
func DecodeBody(raw []byte) (any, error) {
	return decodeBody(raw)
}

func decodeNDJSON(raw []byte) ([]any, error) {
	var out []any
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			return nil, fmt.Errorf("invalid line: %w", err)
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
