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

// Package headers builds the x-goog-* headers Google APIs route and bill on,
// and provides transport layers that attach fixed headers to every request.
package headers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	// RequestParamsHeader carries resource routing parameters.
	RequestParamsHeader = "x-goog-request-params"
	// UserProjectHeader designates the project billed and rate-limited for
	// the request.
	UserProjectHeader = "x-goog-user-project"
	// APIClientHeader reports the client's version metadata.
	APIClientHeader = "x-goog-api-client"
)

// RequestParams accumulates key/value routing pairs for the
// x-goog-request-params header. The zero value is empty and ready to use;
// With returns a new value, so params can be built up and shared safely.
type RequestParams struct {
	pairs []string
}

// With returns a copy of p with key=value appended. The value is formatted
// with the fmt package and URL-escaped; the key must already be a valid
// routing parameter name.
func (p RequestParams) With(key string, value any) RequestParams {
	pair := fmt.Sprintf("%s=%s", key, url.QueryEscape(fmt.Sprintf("%v", value)))
	pairs := make([]string, 0, len(p.pairs)+1)
	pairs = append(pairs, p.pairs...)
	pairs = append(pairs, pair)
	return RequestParams{pairs: pairs}
}

// IsEmpty reports whether no pairs have been added.
func (p RequestParams) IsEmpty() bool {
	return len(p.pairs) == 0
}

// Encode returns the header value, pairs joined with "&".
func (p RequestParams) Encode() string {
	return strings.Join(p.pairs, "&")
}

// SetOn adds the encoded header to h if any pairs were added.
func (p RequestParams) SetOn(h http.Header) {
	if !p.IsEmpty() {
		h.Set(RequestParamsHeader, p.Encode())
	}
}

// NewTransport returns a [http.RoundTripper] that adds the fixed headers to
// every outgoing request before delegating to base. Headers already present
// on a request are not overwritten.
func NewTransport(base http.RoundTripper, fixed http.Header) http.RoundTripper {
	if len(fixed) == 0 {
		return base
	}
	return &headerTransport{base: base, fixed: fixed}
}

type headerTransport struct {
	base  http.RoundTripper
	fixed http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	for k, vs := range t.fixed {
		if req2.Header.Get(k) != "" {
			continue
		}
		for _, v := range vs {
			req2.Header.Add(k, v)
		}
	}
	return t.base.RoundTrip(req2)
}
