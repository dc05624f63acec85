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

package audit

import (
	"sync/atomic"
	"time"
)

// Stats tracks the run-wide counters the orchestrator reports at the end
// of an audit. processed/error counts are true cross-shard aggregates, so
// they live behind atomics rather than a Result shard: a lock here would
// serialize every worker on a value no shard-striping could help with.
type Stats struct {
	processed atomic.Int64
	errors    atomic.Int64
	start     time.Time
	end       time.Time
}

func newStats() *Stats {
	return &Stats{start: time.Now()}
}

// IncrementProcessed records one more namespace visited and returns the
// new total, used by the rate limiter to decide whether this visit is the
// one that should sleep.
func (s *Stats) IncrementProcessed() int64 {
	return s.processed.Add(1)
}

// IncrementErrors records one more per-namespace failure.
func (s *Stats) IncrementErrors() {
	s.errors.Add(1)
}

// Finish stamps the end time. Called once, after the worker pool drains.
func (s *Stats) Finish() {
	s.end = time.Now()
}

// Processed returns the current processed-namespace count.
func (s *Stats) Processed() int64 { return s.processed.Load() }

// Errors returns the current per-namespace error count.
func (s *Stats) Errors() int64 { return s.errors.Load() }

// Duration returns the wall-clock run time. Valid only after Finish.
func (s *Stats) Duration() time.Duration {
	if s.end.IsZero() {
		return time.Since(s.start)
	}
	return s.end.Sub(s.start)
}
