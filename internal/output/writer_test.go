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

package output

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestName(t *testing.T) {
	got := Name("prod-1", "namespaces", "json", time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC))
	want := "prod-1-namespaces-20260305.json"
	if got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
}

func TestWriteJSON_CreatesParentDirAndDoesNotEscapeHTML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	if err := WriteJSON(path, map[string]any{"path": "team-a/b&c"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(raw), "&") {
		t.Errorf("expected a literal & (SetEscapeHTML(false)), got: %s", raw)
	}

	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got["path"] != "team-a/b&c" {
		t.Errorf("roundtrip = %q, want %q", got["path"], "team-a/b&c")
	}
}

func TestWriteCSV_HeaderFromExplicitOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	rows := []map[string]any{
		{"namespace": "team-a", "kv": 2, "token": 0},
		{"namespace": "team-b", "kv": 0, "token": 1},
	}
	if err := WriteCSV(path, rows, []string{"namespace", "kv", "token"}); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3 (header + 2 rows)", len(records))
	}
	if records[0][0] != "namespace" || records[0][1] != "kv" || records[0][2] != "token" {
		t.Fatalf("header = %v, want [namespace kv token]", records[0])
	}
	if records[1][0] != "team-a" || records[1][1] != "2" {
		t.Errorf("row 1 = %v, want [team-a 2 0]", records[1])
	}
}

func TestWriteCSV_NoRowsNoHeadersWritesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	if err := WriteCSV(path, nil, nil); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no file to be created, stat err = %v", err)
	}
}

func TestWriteCSV_NestedValueIsJSONEncoded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	rows := []map[string]any{
		{"path": "team-a", "custom_metadata": map[string]any{"owner": "platform"}},
	}
	if err := WriteCSV(path, rows, []string{"path", "custom_metadata"}); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	f, _ := os.Open(path)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if records[1][1] != `{"owner":"platform"}` {
		t.Errorf("custom_metadata cell = %q, want JSON-encoded map", records[1][1])
	}
}
