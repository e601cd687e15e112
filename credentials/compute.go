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
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	"github.com/mysticetus/gcp-auth"
)

const computeTokenURI = "instance/service-accounts/default/token"

// metadataCredentials builds credentials backed by the metadata server. The
// first token fetch starts in the background immediately so the first caller
// does not pay the cold-start round trip, and the project ID probe failing
// just means no project is attached.
func metadataCredentials(opts *DetectOptions) *auth.Credentials {
	projectID, err := metadata.ProjectIDWithContext(context.Background())
	if err != nil {
		opts.logger().Debug("metadata project ID unavailable", "error", err)
	}
	tp := auth.NewCachedTokenProvider(computeProvider{scopes: opts.scopes()}, &auth.CachedTokenProviderOptions{
		ExpireEarly:  opts.EarlyTokenRefresh,
		EagerRefresh: true,
		Logger:       opts.Logger,
	})
	return auth.NewCredentials(&auth.CredentialsOptions{
		TokenProvider: tp,
		ProjectID:     projectID,
	})
}

// computeProvider fetches tokens from the google cloud metadata service.
type computeProvider struct {
	scopes auth.Scopes
}

type metadataTokenResp struct {
	AccessToken  string `json:"access_token"`
	ExpiresInSec int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

func (cs computeProvider) Token(ctx context.Context) (*auth.Token, error) {
	tokenURI, err := url.Parse(computeTokenURI)
	if err != nil {
		return nil, err
	}
	if !cs.scopes.IsEmpty() {
		v := url.Values{}
		v.Set("scopes", strings.Join(cs.scopes.All(), ","))
		tokenURI.RawQuery = v.Encode()
	}
	tokenJSON, err := metadata.GetWithContext(ctx, tokenURI.String())
	if err != nil {
		return nil, fmt.Errorf("credentials: cannot fetch token from metadata: %w", err)
	}
	var res metadataTokenResp
	if err := json.NewDecoder(strings.NewReader(tokenJSON)).Decode(&res); err != nil {
		return nil, fmt.Errorf("credentials: invalid token JSON from metadata: %w", err)
	}
	if res.ExpiresInSec == 0 || res.AccessToken == "" {
		return nil, errors.New("credentials: incomplete token received from metadata")
	}
	return auth.NewToken(res.AccessToken, time.Now().Add(time.Duration(res.ExpiresInSec)*time.Second))
}
