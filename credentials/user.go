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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mysticetus/gcp-auth"
	"github.com/mysticetus/gcp-auth/credentials/internal/credsfile"
)

// userTokenProvider exchanges the long-lived refresh token from an
// authorized-user file for access tokens.
type userTokenProvider struct {
	client *http.Client
	logger *slog.Logger

	clientID     string
	clientSecret string
	refreshToken string
	tokenURL     string
}

func newUserTokenProvider(f *credsfile.UserCredentialsFile, opts *DetectOptions) (auth.TokenProvider, error) {
	if f.ClientID == "" || f.ClientSecret == "" || f.RefreshToken == "" {
		return nil, errors.New("credentials: authorized-user file missing client_id, client_secret or refresh_token")
	}
	return &userTokenProvider{
		client:       opts.client(),
		logger:       opts.logger(),
		clientID:     f.ClientID,
		clientSecret: f.ClientSecret,
		refreshToken: f.RefreshToken,
		tokenURL:     opts.tokenURL(),
	}, nil
}

func (p *userTokenProvider) Token(ctx context.Context) (*auth.Token, error) {
	v := url.Values{}
	v.Set("grant_type", "refresh_token")
	v.Set("client_id", p.clientID)
	v.Set("client_secret", p.clientSecret)
	v.Set("refresh_token", p.refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(v.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	p.logger.DebugContext(ctx, "refreshing user credential", "url", p.tokenURL)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("credentials: cannot refresh user credential: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("credentials: cannot refresh user credential: %w", err)
	}
	if c := resp.StatusCode; c < 200 || c > 299 {
		return nil, auth.NewResponseError(resp, body, p.tokenURL)
	}
	var tokenRes struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenRes); err != nil {
		return nil, fmt.Errorf("credentials: cannot parse token response: %w", err)
	}
	if tokenRes.AccessToken == "" {
		return nil, errors.New("credentials: token response missing access_token")
	}
	return auth.NewToken(tokenRes.AccessToken, time.Now().Add(time.Duration(tokenRes.ExpiresIn)*time.Second))
}
