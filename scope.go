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
	"slices"
	"strings"
)

// Commonly requested scopes.
const (
	// ScopeCloudPlatform grants access to all Google Cloud resources the
	// credential can reach.
	ScopeCloudPlatform = "https://www.googleapis.com/auth/cloud-platform"
	// ScopeCloudPlatformReadOnly is the read-only variant of
	// [ScopeCloudPlatform].
	ScopeCloudPlatformReadOnly = "https://www.googleapis.com/auth/cloud-platform.read-only"
	// ScopeUserInfoEmail grants access to the email address of the
	// authenticated principal.
	ScopeUserInfoEmail = "https://www.googleapis.com/auth/userinfo.email"
)

// Scopes is a canonical set of OAuth scope URIs: sorted and deduplicated.
// The zero value is the empty set and ready to use. Scopes values are
// immutable; With returns a new set.
type Scopes struct {
	uris []string
}

// NewScopes builds a Scopes set from the given URIs, dropping duplicates and
// empty strings.
func NewScopes(uris ...string) Scopes {
	return Scopes{}.With(uris...)
}

// ParseScopes builds a Scopes set from a space-separated scope string, the
// wire encoding used by OAuth token endpoints.
func ParseScopes(s string) Scopes {
	return NewScopes(strings.Fields(s)...)
}

// With returns a new set containing the receiver's scopes plus uris.
func (s Scopes) With(uris ...string) Scopes {
	out := make([]string, 0, len(s.uris)+len(uris))
	out = append(out, s.uris...)
	for _, u := range uris {
		if u == "" {
			continue
		}
		if i, found := slices.BinarySearch(out, u); !found {
			out = slices.Insert(out, i, u)
		}
	}
	return Scopes{uris: out}
}

// Contains reports whether uri is in the set.
func (s Scopes) Contains(uri string) bool {
	_, found := slices.BinarySearch(s.uris, uri)
	return found
}

// IsEmpty reports whether the set holds no scopes.
func (s Scopes) IsEmpty() bool {
	return len(s.uris) == 0
}

// Len returns the number of scopes in the set.
func (s Scopes) Len() int {
	return len(s.uris)
}

// All returns the scopes in canonical order. The returned slice is a copy.
func (s Scopes) All() []string {
	return slices.Clone(s.uris)
}

// Encode returns the canonical wire form: unique scopes, sorted,
// space-joined. ParseScopes(s.Encode()) equals s.
func (s Scopes) Encode() string {
	return strings.Join(s.uris, " ")
}

// Equal reports whether two sets contain the same scopes.
func (s Scopes) Equal(o Scopes) bool {
	return slices.Equal(s.uris, o.uris)
}

func (s Scopes) String() string {
	return s.Encode()
}
