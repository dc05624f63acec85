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
	"reflect"
	"testing"
)

func TestDecodeBody_SingleJSONObject(t *testing.T) {
	got, err := decodeBody([]byte(`{"client_id":"a"}`))
	if err != nil {
		t.Fatalf("decodeBody() error = %v", err)
	}
	want := map[string]any{"client_id": "a"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("decodeBody() = %#v, want %#v", got, want)
	}
}

func TestDecodeBody_SingleJSONArray(t *testing.T) {
	got, err := decodeBody([]byte(`[1,2,3]`))
	if err != nil {
		t.Fatalf("decodeBody() error = %v", err)
	}
	want := []any{1.0, 2.0, 3.0}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("decodeBody() = %#v, want %#v", got, want)
	}
}

func TestDecodeBody_NDJSONFallback(t *testing.T) {
	got, err := decodeBody([]byte("{\"client_id\":\"a\"}\n{\"client_id\":\"b\"}\n"))
	if err != nil {
		t.Fatalf("decodeBody() error = %v", err)
	}
	values, ok := got.([]any)
	if !ok || len(values) != 2 {
		t.Fatalf("decodeBody() = %#v, want a 2-element slice", got)
	}
	first, ok := values[0].(map[string]any)
	if !ok || first["client_id"] != "a" {
		t.Errorf("values[0] = %#v, want client_id=a", values[0])
	}
}

func TestDecodeBody_EmptyBody(t *testing.T) {
	got, err := decodeBody(nil)
	if err != nil {
		t.Fatalf("decodeBody() error = %v", err)
	}
	if m, ok := got.(map[string]any); !ok || len(m) != 0 {
		t.Fatalf("decodeBody(nil) = %#v, want empty map", got)
	}
}

func TestDecodeBody_InvalidPayload(t *testing.T) {
	if _, err := decodeBody([]byte("not json at all")); err == nil {
		t.Fatal("decodeBody() error = nil, want non-nil for garbage input")
	}
}
