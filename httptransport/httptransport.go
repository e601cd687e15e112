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

// Package httptransport provides bearer-authenticated [net/http] clients.
package httptransport

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mysticetus/gcp-auth"
	"github.com/mysticetus/gcp-auth/credentials"
	"github.com/mysticetus/gcp-auth/internal"
)

// Options used to configure an authenticated client from [NewClient].
type Options struct {
	// DisableAuthentication specifies that no authentication should be used.
	// It is mutually exclusive with Credentials and DetectOpts.
	DisableAuthentication bool
	// DisableTelemetry specifies that metrics and tracing should be disabled.
	DisableTelemetry bool
	// Headers are extra HTTP headers that will be appended to every outgoing
	// request.
	Headers http.Header
	// BaseRoundTripper overrides the base transport used for serving
	// requests. If specified ClientCertProvider is ignored.
	BaseRoundTripper http.RoundTripper
	// Credentials used to add Authorization headers to all requests. If not
	// provided [credentials.DetectDefault] resolves them.
	Credentials *auth.Credentials
	// DetectOpts configures settings for detecting default credentials.
	DetectOpts *credentials.DetectOptions
	// Logger for debug logging. Optional.
	Logger *slog.Logger
}

func (o *Options) validate() error {
	if o == nil {
		return errors.New("httptransport: options must be provided")
	}
	hasCreds := o.Credentials != nil ||
		(o.DetectOpts != nil && len(o.DetectOpts.CredentialsJSON) > 0) ||
		(o.DetectOpts != nil && o.DetectOpts.CredentialsFile != "")
	if o.DisableAuthentication && hasCreds {
		return errors.New("httptransport: DisableAuthentication is incompatible with options that set or detect credentials")
	}
	return nil
}

func (o *Options) resolveDetectOptions() *credentials.DetectOptions {
	if o.DetectOpts == nil {
		return &credentials.DetectOptions{
			Scopes: auth.NewScopes(auth.ScopeCloudPlatform),
			Logger: o.Logger,
		}
	}
	do := *o.DetectOpts
	if do.Logger == nil {
		do.Logger = o.Logger
	}
	return &do
}

func (o *Options) resolveCredentials() (*auth.Credentials, error) {
	if o.Credentials != nil {
		return o.Credentials, nil
	}
	return credentials.DetectDefault(o.resolveDetectOptions())
}

// NewClient returns a [net/http.Client] that adds an Authorization header
// with a bearer token from the configured or detected credentials to every
// request.
func NewClient(opts *Options) (*http.Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	var creds *auth.Credentials
	if !opts.DisableAuthentication {
		var err error
		if creds, err = opts.resolveCredentials(); err != nil {
			return nil, err
		}
	}
	base := opts.BaseRoundTripper
	if base == nil {
		base = internal.CloneDefaultTransport()
	}
	trans, err := newTransport(base, creds, opts)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: trans}, nil
}

// AddAuthorizationMiddleware adds a middleware to the provided client's
// transport that sets the Authorization header with the value produced by
// the provided [auth.Credentials].
//
// The returned middleware never retries requests. When a response comes back
// 401 or 403 the credential is revoked, with a replacement fetch started
// immediately, and the response is returned to the caller unchanged.
func AddAuthorizationMiddleware(client *http.Client, creds *auth.Credentials) error {
	if client == nil || creds == nil {
		return fmt.Errorf("httptransport: client and creds must not be nil")
	}
	base := client.Transport
	if base == nil {
		base = internal.CloneDefaultTransport()
	}
	client.Transport = &authTransport{
		creds: creds,
		base:  base,
	}
	return nil
}
