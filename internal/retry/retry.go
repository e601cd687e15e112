// Copyright 2025 Mysticetus
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package retry provides the bounded retry policy used for token fetches.
package retry

import (
	"errors"
	"io"
	"math/rand"
	"net/http"
	"time"
)

const (
	// maxRetryAttempts is the number of retries after the initial attempt.
	maxRetryAttempts = 5

	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultMultiplier     = 2.0
)

// New returns a Retryer with the default token-fetch policy: up to five
// retries with exponential backoff and full jitter, 100ms initial, 10s cap.
func New() *Retryer {
	return &Retryer{
		bo: &defaultBackoff{
			cur: defaultInitialBackoff,
			max: defaultMaxBackoff,
			mul: defaultMultiplier,
		},
	}
}

// Retryer decides whether a failed token fetch should be attempted again and
// how long to pause first. It is not safe for concurrent use.
type Retryer struct {
	attempts int
	bo       *defaultBackoff
}

// Retry reports whether the attempt that produced (status, err) should be
// retried, and if so, how long to back off first.
func (r *Retryer) Retry(status int, err error) (time.Duration, bool) {
	if !shouldRetry(status, err) {
		return 0, false
	}
	if r.attempts >= maxRetryAttempts {
		return 0, false
	}
	r.attempts++
	return r.bo.Pause(), true
}

// shouldRetry classifies an outcome as transient. Anything else, including
// auth failures and malformed responses, is fatal and short-circuits.
func shouldRetry(status int, err error) bool {
	switch status {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusRequestTimeout,
		http.StatusTooManyRequests:
		return true
	}
	if err == nil {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return false
}

type defaultBackoff struct {
	max time.Duration
	mul float64
	cur time.Duration
}

// Pause returns a jittered duration in (0, cur] and advances cur toward max.
func (b *defaultBackoff) Pause() time.Duration {
	d := time.Duration(1 + rand.Int63n(int64(b.cur)))
	b.cur = time.Duration(float64(b.cur) * b.mul)
	if b.cur > b.max {
		b.cur = b.max
	}
	return d
}
