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

// Package oauth2adapt bridges [auth.TokenProvider] and
// [golang.org/x/oauth2.TokenSource] in both directions, so the core can feed
// clients built on either interface.
package oauth2adapt

import (
	"context"
	"errors"

	"golang.org/x/oauth2"

	"github.com/mysticetus/gcp-auth"
)

// TokenProviderFromTokenSource converts any [golang.org/x/oauth2.TokenSource]
// into an [auth.TokenProvider].
func TokenProviderFromTokenSource(ts oauth2.TokenSource) auth.TokenProvider {
	return tokenProviderAdapter{ts: ts}
}

type tokenProviderAdapter struct {
	ts oauth2.TokenSource
}

// Token fulfills the [auth.TokenProvider] interface. It is a light wrapper
// around the underlying TokenSource; the context is not used as oauth2 has
// no way to thread it through.
func (tp tokenProviderAdapter) Token(context.Context) (*auth.Token, error) {
	tok, err := tp.ts.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &auth.Error{
				Response: retrieveErr.Response,
				Body:     retrieveErr.Body,
				Err:      retrieveErr,
			}
		}
		return nil, err
	}
	return &auth.Token{
		Value:  tok.AccessToken,
		Expiry: tok.Expiry,
	}, nil
}

// TokenSourceFromTokenProvider converts an [auth.TokenProvider] into a
// [golang.org/x/oauth2.TokenSource].
func TokenSourceFromTokenProvider(tp auth.TokenProvider) oauth2.TokenSource {
	return tokenSourceAdapter{tp: tp}
}

type tokenSourceAdapter struct {
	tp auth.TokenProvider
}

// Token fulfills the [golang.org/x/oauth2.TokenSource] interface.
func (ts tokenSourceAdapter) Token() (*oauth2.Token, error) {
	tok, err := ts.tp.Token(context.Background())
	if err != nil {
		var aErr *auth.Error
		if errors.As(err, &aErr) {
			return nil, &oauth2.RetrieveError{
				Response: aErr.Response,
				Body:     aErr.Body,
			}
		}
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: tok.Value,
		TokenType:   "Bearer",
		Expiry:      tok.Expiry,
	}, nil
}
