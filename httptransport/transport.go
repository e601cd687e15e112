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

package httptransport

import (
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mysticetus/gcp-auth"
	"github.com/mysticetus/gcp-auth/headers"
	"github.com/mysticetus/gcp-auth/internal"
)

func newTransport(base http.RoundTripper, creds *auth.Credentials, opts *Options) (http.RoundTripper, error) {
	fixed := make(http.Header, len(opts.Headers)+1)
	for k, v := range opts.Headers {
		fixed[k] = v
	}
	if qp := os.Getenv(internal.QuotaProjectEnvVar); qp != "" && fixed.Get(headers.UserProjectHeader) == "" {
		fixed.Set(headers.UserProjectHeader, qp)
	}
	trans := headers.NewTransport(base, fixed)
	if !opts.DisableTelemetry {
		trans = otelhttp.NewTransport(trans)
	}
	if creds != nil {
		trans = &authTransport{
			creds: creds,
			base:  trans,
		}
	}
	return trans, nil
}

// authTransport adds the bearer token from creds to every request.
type authTransport struct {
	creds *auth.Credentials
	base  http.RoundTripper
}

// RoundTrip authorizes and authenticates the request with an access token
// from the transport's credentials. The business request itself is never
// retried here; a 401 or 403 response revokes the cached token so the next
// request gets a fresh one, and is then handed back as-is.
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqBodyClosed := false
	if req.Body != nil {
		defer func() {
			if !reqBodyClosed {
				req.Body.Close()
			}
		}()
	}
	token, err := t.creds.Token(req.Context())
	if err != nil {
		return nil, err
	}
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", token.Header())

	// req.Body is assumed to be closed by the base RoundTripper.
	reqBodyClosed = true
	resp, err := t.base.RoundTrip(req2)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		t.creds.Revoke(true)
	}
	return resp, nil
}
