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

package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/mysticetus/gcp-auth"
)

const gcloudCmd = "gcloud"

// gcloudTokenLifetime is assumed for CLI tokens; gcloud does not report an
// expiry on stdout.
const gcloudTokenLifetime = time.Hour

// for testing
var execLookPath = exec.LookPath

// gcloudCredentials detects an installed gcloud CLI. Detection fetches the
// first token up front, so a CLI with no active account reads as "not
// available" rather than failing later on the first request. The fetched
// token seeds the cache.
func gcloudCredentials(opts *DetectOptions) (*auth.Credentials, bool) {
	logger := opts.logger()
	if _, err := execLookPath(gcloudCmd); err != nil {
		return nil, false
	}
	p := gcloudProvider{logger: logger}
	tok, err := p.Token(context.Background())
	if err != nil {
		logger.Debug("gcloud unavailable", "error", err)
		return nil, false
	}
	tp := auth.NewCachedTokenProvider(p, &auth.CachedTokenProviderOptions{
		ExpireEarly:  opts.EarlyTokenRefresh,
		InitialToken: tok,
		Logger:       opts.Logger,
	})
	return auth.NewCredentials(&auth.CredentialsOptions{
		TokenProvider: tp,
		ProjectID:     gcloudProjectID(context.Background()),
	}), true
}

// gcloudProvider shells out to "gcloud auth print-access-token".
type gcloudProvider struct {
	logger *slog.Logger
}

func (p gcloudProvider) Token(ctx context.Context) (*auth.Token, error) {
	p.logger.DebugContext(ctx, "fetching token from gcloud CLI")
	out, err := exec.CommandContext(ctx, gcloudCmd, "auth", "print-access-token").Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("credentials: gcloud exited with %d: %s", exitErr.ExitCode(), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("credentials: cannot run gcloud: %w", err)
	}
	// gcloud may print warnings after the token; only the first line counts.
	value := string(out)
	if i := strings.IndexByte(value, '\n'); i >= 0 {
		value = value[:i]
	}
	value = strings.TrimSuffix(value, "\r")
	if value == "" {
		return nil, errors.New("credentials: gcloud printed no token")
	}
	return auth.NewToken(value, time.Now().Add(gcloudTokenLifetime))
}

func gcloudProjectID(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, gcloudCmd, "config", "get-value", "project").Output()
	if err != nil {
		return ""
	}
	id := strings.TrimSpace(string(out))
	if id == "(unset)" {
		return ""
	}
	return id
}
