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
	"os"
	"strings"
	"time"

	"github.com/mysticetus/gcp-auth"
)

// emulatorTokenValue is the placeholder bearer token emulators accept.
const emulatorTokenValue = "owner"

const emulatorHostSuffix = "_EMULATOR_HOST"

// for testing
var environ = os.Environ

// emulatorCredentials reports whether any *_EMULATOR_HOST environment
// variable is set, meaning requests go to a local emulator that accepts a
// constant placeholder token.
func emulatorCredentials() (*auth.Credentials, bool) {
	if !emulatorConfigured() {
		return nil, false
	}
	return auth.NewCredentials(&auth.CredentialsOptions{
		TokenProvider: emulatorProvider{},
	}), true
}

func emulatorConfigured() bool {
	for _, kv := range environ() {
		name, value, ok := strings.Cut(kv, "=")
		if ok && value != "" && strings.HasSuffix(name, emulatorHostSuffix) {
			return true
		}
	}
	return false
}

// emulatorProvider returns the constant token. It never expires and never
// touches the network, so there is nothing to cache or revoke.
type emulatorProvider struct{}

func (emulatorProvider) Token(ctx context.Context) (*auth.Token, error) {
	// The zero Expiry marks the token as never expiring.
	return auth.NewToken(emulatorTokenValue, time.Time{})
}
