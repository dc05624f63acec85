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
	"time"

	"nsaudit/internal/metrics"
)

// rateLimiter implements the batch-sleep cohort policy: after every
// BatchSize processed namespaces, the worker whose increment landed on the
// batch boundary sleeps Sleep seconds. This throttles the cohort, not
// individual calls; it does not attempt to correct the known
// under-throttling when the worker count exceeds BatchSize (see
// DESIGN.md) — that skew is an intentional, preserved behavior, not a bug.
type rateLimiter struct {
	BatchSize int
	Sleep     time.Duration
	Disabled  bool
}

// maybeThrottle checks processed (already incremented by the caller)
// against the batch boundary and sleeps if this call landed on it.
func (r rateLimiter) maybeThrottle(processed int64) {
	if r.Disabled || r.BatchSize <= 0 {
		return
	}
	if processed > 0 && processed%int64(r.BatchSize) == 0 {
		time.Sleep(r.Sleep)
		metrics.RecordRateLimitSleep(r.Sleep)
	}
}
