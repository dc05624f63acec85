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

// Package config resolves connection and runtime settings for nsaudit from
// the environment, with an optional .env file as a convenience layer.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the connection and output settings shared by every
// subcommand. Per-subcommand knobs (workers, date range, ...) live on the
// subcommand's own options struct.
type Config struct {
	Addr       string
	Token      string
	SkipVerify bool
	OutputDir  string
	Debug      bool
}

// Load reads the environment (after best-effort loading a .env file in the
// working directory) into a Config. Any error from loading .env, whether
// the file is missing or malformed, is ignored.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:       os.Getenv("VAULT_ADDR"),
		Token:      os.Getenv("VAULT_TOKEN"),
		SkipVerify: boolEnv("VAULT_SKIP_VERIFY", false),
		OutputDir:  stringEnv("VAULT_TOOLS_OUTPUT_DIR", "outputs"),
		Debug:      boolEnv("VAULT_TOOLS_DEBUG", false),
	}

	if cfg.Addr == "" || cfg.Token == "" {
		return cfg, &ConfigError{Message: "VAULT_ADDR and VAULT_TOKEN must be set"}
	}
	return cfg, nil
}

// ConfigError signals a missing or invalid configuration value. It is
// always fatal to the process (spec: Config errors abort with exit 1).
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

func stringEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func boolEnv(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// IntEnv reads an integer environment variable, falling back to def on
// absence or parse failure.
func IntEnv(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
