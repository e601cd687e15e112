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

// Package credentials locates ambient Google Cloud credentials and turns
// them into an [auth.Credentials] handle.
package credentials

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/compute/metadata"
	"github.com/googleapis/gax-go/v2/internallog"
	"github.com/mysticetus/gcp-auth"
	"github.com/mysticetus/gcp-auth/credentials/internal/credsfile"
	"github.com/mysticetus/gcp-auth/internal"
)

const (
	// jwtTokenURL is Google's OAuth 2.0 token URL to use with the JWT(2LO) flow.
	jwtTokenURL = "https://oauth2.googleapis.com/token"

	// googleTokenURL is Google's OAuth 2.0 token URL for authorized-user
	// refresh grants.
	googleTokenURL = "https://oauth2.googleapis.com/token"

	// Help on default credentials
	adcSetupURL = "https://cloud.google.com/docs/authentication/external/set-up-adc"
)

var (
	// for testing
	allowOnGCECheck = true
)

// OnGCE reports whether this process is running in Google Cloud.
func OnGCE() bool {
	return allowOnGCECheck && metadata.OnGCE()
}

// DetectDefault searches for "Application Default Credentials" and returns
// a credential based on the [DetectOptions] provided.
//
// It looks for credentials in the following places, preferring the first
// location found:
//
//   - An emulator advertised through a *_EMULATOR_HOST environment variable,
//     which yields a constant placeholder token.
//   - A JSON file whose path is specified by the GOOGLE_APPLICATION_CREDENTIALS
//     environment variable.
//   - On Google Compute Engine and the App Engine and Cloud Run second
//     generation runtimes, the metadata server.
//   - The gcloud command-line tool, if installed.
//   - The application-default credentials file gcloud maintains. On Windows,
//     this is %APPDATA%/gcloud/application_default_credentials.json. On other
//     systems, $HOME/.config/gcloud/application_default_credentials.json.
func DetectDefault(opts *DetectOptions) (*auth.Credentials, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(opts.CredentialsJSON) > 0 {
		return fileCredentials(opts.CredentialsJSON, opts)
	}
	if opts.CredentialsFile != "" {
		b, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("credentials: cannot read %q: %w", opts.CredentialsFile, err)
		}
		return fileCredentials(b, opts)
	}
	if creds, ok := emulatorCredentials(); ok {
		return creds, nil
	}
	if filename := credsfile.GetFileNameFromEnv(""); filename != "" {
		b, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("credentials: cannot read %q: %w", filename, err)
		}
		return fileCredentials(b, opts)
	}
	if OnGCE() {
		return metadataCredentials(opts), nil
	}
	if creds, ok := gcloudCredentials(opts); ok {
		return creds, nil
	}
	if b, err := os.ReadFile(credsfile.GetWellKnownFile()); err == nil {
		return fileCredentials(b, opts)
	}
	return nil, fmt.Errorf("credentials: could not find default credentials. See %v for more information", adcSetupURL)
}

// DetectOptions provides configuration for [DetectDefault].
type DetectOptions struct {
	// Scopes that credentials tokens should have. Defaults to
	// [auth.ScopeCloudPlatform] if neither Scopes nor Audience is set.
	Scopes auth.Scopes
	// Audience that credentials tokens should have. Only applicable for 2LO
	// flows with service accounts. If specified, scopes should not be
	// provided.
	Audience string
	// Subject is the user email used for [domain wide delegation](https://developers.google.com/identity/protocols/oauth2/service-account#delegatingauthority).
	// Optional.
	Subject string
	// EarlyTokenRefresh configures how early before a token expires that it
	// should be refreshed. Defaults to one minute.
	EarlyTokenRefresh time.Duration
	// TokenURL allows to set the token endpoint for user credential flows.
	// If unset the default value is: https://oauth2.googleapis.com/token.
	// Optional.
	TokenURL string
	// CredentialsFile overrides detection logic and sources a credential file
	// from the provided filepath. If provided, CredentialsJSON must not be.
	// Optional.
	CredentialsFile string
	// CredentialsJSON overrides detection logic and uses the JSON bytes as
	// the source for the credential. If provided, CredentialsFile must not
	// be. Optional.
	CredentialsJSON []byte
	// Client configures the underlying client used to make network requests
	// when fetching tokens. Optional.
	Client *http.Client
	// Logger for debug logging. Optional.
	Logger *slog.Logger
}

func (o *DetectOptions) validate() error {
	if o == nil {
		return errors.New("credentials: options must be provided")
	}
	if !o.Scopes.IsEmpty() && o.Audience != "" {
		return errors.New("credentials: both scopes and audience were provided")
	}
	if len(o.CredentialsJSON) > 0 && o.CredentialsFile != "" {
		return errors.New("credentials: both credentials file and JSON were provided")
	}
	return nil
}

func (o *DetectOptions) scopes() auth.Scopes {
	if o.Scopes.IsEmpty() && o.Audience == "" {
		return auth.NewScopes(auth.ScopeCloudPlatform)
	}
	return o.Scopes
}

func (o *DetectOptions) tokenURL() string {
	if o.TokenURL != "" {
		return o.TokenURL
	}
	return googleTokenURL
}

func (o *DetectOptions) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return internal.DefaultClient()
}

func (o *DetectOptions) logger() *slog.Logger {
	return internallog.New(o.Logger)
}
