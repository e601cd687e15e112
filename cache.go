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

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/googleapis/gax-go/v2/internallog"
	"github.com/mysticetus/gcp-auth/internal/retry"
)

// CachedTokenProviderOptions tune the behavior of [NewCachedTokenProvider].
type CachedTokenProviderOptions struct {
	// ExpireEarly configures how early before a token expires it stops being
	// handed out. Defaults to one minute.
	ExpireEarly time.Duration
	// EagerRefresh starts fetching the first token in the background as soon
	// as the provider is constructed, so the first caller does not pay the
	// full round trip.
	EagerRefresh bool
	// InitialToken seeds the cache with a token already obtained during
	// detection. Optional.
	InitialToken *Token
	// DisableRetry turns off the bounded retry policy around the inner
	// provider, used by providers that retry internally.
	DisableRetry bool
	// Logger for debug logging. Optional.
	Logger *slog.Logger
}

func (o *CachedTokenProviderOptions) expireEarly() time.Duration {
	if o == nil || o.ExpireEarly <= 0 {
		return defaultExpireEarly
	}
	return o.ExpireEarly
}

// NewCachedTokenProvider wraps a [TokenProvider] to cache the token returned
// by the underlying provider. By default it will refresh tokens one minute
// before they expire.
//
// All concurrent callers that find the cached token missing or inside the
// refresh window share a single refresh of the inner provider: exactly one
// fetch runs at a time, every waiter observes its outcome, and a waiter whose
// context is canceled detaches without canceling the shared refresh. Failed
// refreshes are reported to their waiters and never cached.
//
// The returned provider implements [TokenRevoker].
func NewCachedTokenProvider(tp TokenProvider, opts *CachedTokenProviderOptions) TokenProvider {
	if ctp, ok := tp.(*cachedTokenProvider); ok {
		return ctp
	}
	ctp := &cachedTokenProvider{
		tp:           tp,
		expireEarly:  opts.expireEarly(),
		disableRetry: opts != nil && opts.DisableRetry,
		logger:       internallog.New(loggerFromOpts(opts)),
	}
	if opts != nil {
		ctp.cachedToken = opts.InitialToken
	}
	if opts != nil && opts.EagerRefresh {
		ctp.mu.Lock()
		ctp.startRefreshLocked()
		ctp.mu.Unlock()
	}
	return ctp
}

func loggerFromOpts(opts *CachedTokenProviderOptions) *slog.Logger {
	if opts == nil {
		return nil
	}
	return opts.Logger
}

type cachedTokenProvider struct {
	tp           TokenProvider
	expireEarly  time.Duration
	disableRetry bool
	logger       *slog.Logger

	mu          sync.Mutex
	cachedToken *Token
	refresh     *refreshOp
}

// refreshOp is one shared fetch through the inner provider. tok and err are
// written exactly once, before done is closed.
type refreshOp struct {
	done chan struct{}
	tok  *Token
	err  error
}

func (c *cachedTokenProvider) Token(ctx context.Context) (*Token, error) {
	c.mu.Lock()
	if c.cachedToken.isValidWithEarlyExpiry(c.expireEarly) {
		tok := c.cachedToken
		c.mu.Unlock()
		return tok, nil
	}
	op := c.startRefreshLocked()
	c.mu.Unlock()

	select {
	case <-op.done:
		return op.tok, op.err
	case <-ctx.Done():
		// The refresh keeps running for the remaining waiters; only this
		// caller gives up.
		return nil, ctx.Err()
	}
}

// Revoke discards the cached token so no further caller sees it. If startNew
// is set and no refresh is already in flight, a replacement fetch begins
// immediately in the background.
func (c *cachedTokenProvider) Revoke(startNew bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cachedToken = nil
	if startNew {
		c.startRefreshLocked()
	}
}

// startRefreshLocked joins the in-flight refresh or begins a new one. The
// caller must hold c.mu.
func (c *cachedTokenProvider) startRefreshLocked() *refreshOp {
	if c.refresh != nil {
		return c.refresh
	}
	op := &refreshOp{done: make(chan struct{})}
	c.refresh = op
	go c.runRefresh(op)
	return op
}

func (c *cachedTokenProvider) runRefresh(op *refreshOp) {
	// Detached from any single waiter's context on purpose: the result is
	// shared, so one canceled caller must not abort it for the rest.
	tok, err := c.fetch(context.Background())
	if err != nil {
		c.logger.Debug("token refresh failed", "error", err)
	}

	c.mu.Lock()
	if err == nil {
		c.cachedToken = tok
	}
	// Clear the slot before waking waiters so a Revoke observed after the
	// outcome starts a fresh op instead of joining this finished one.
	if c.refresh == op {
		c.refresh = nil
	}
	c.mu.Unlock()

	op.tok, op.err = tok, err
	close(op.done)
}

// fetch runs one refresh through the retry policy: the first attempt is
// immediate, transient failures back off, fatal ones return right away.
func (c *cachedTokenProvider) fetch(ctx context.Context) (*Token, error) {
	if c.disableRetry {
		return c.tp.Token(ctx)
	}
	r := retry.New()
	for {
		tok, err := c.tp.Token(ctx)
		if err == nil {
			return tok, nil
		}
		status := 0
		var ae *Error
		if errors.As(err, &ae) && ae.Response != nil {
			status = ae.Response.StatusCode
		}
		pause, ok := r.Retry(status, err)
		if !ok {
			return nil, err
		}
		c.logger.Debug("retrying token fetch", "pause", pause, "error", err)
		t := time.NewTimer(pause)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	}
}
