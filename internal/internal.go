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

// Package internal holds plumbing shared by the auth packages.
package internal

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// TokenTypeBearer is the auth header prefix for bearer tokens.
	TokenTypeBearer = "Bearer"

	// DefaultUniverseDomain is the default service domain for a Cloud
	// universe.
	DefaultUniverseDomain = "googleapis.com"

	// GoogleTokenURL is the standard OAuth2 token exchange endpoint.
	GoogleTokenURL = "https://oauth2.googleapis.com/token"

	// QuotaProjectEnvVar is the environment variable for setting the quota
	// project.
	QuotaProjectEnvVar = "GOOGLE_CLOUD_QUOTA_PROJECT"
)

// CloneDefaultTransport returns a copy of http.DefaultTransport when it is a
// [*http.Transport] or exposes a Clone method, falling back to the transport
// itself.
func CloneDefaultTransport() http.RoundTripper {
	switch t := http.DefaultTransport.(type) {
	case *http.Transport:
		return t.Clone()
	case interface{ Clone() *http.Transport }:
		return t.Clone()
	default:
		return t
	}
}

// DefaultClient returns an [http.Client] with a sane default timeout that
// does not share state with other clients built from http.DefaultTransport.
func DefaultClient() *http.Client {
	return &http.Client{
		Transport: CloneDefaultTransport(),
		Timeout:   30 * time.Second,
	}
}

// ParseKey converts the binary contents of a private key file to an
// *rsa.PrivateKey. It detects whether the private key is in a PEM container
// or not. If the private key is encoded as PKCS#8 it only supports RSA keys.
func ParseKey(key []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(key)
	if block != nil {
		key = block.Bytes
	}
	parsedKey, err := x509.ParsePKCS8PrivateKey(key)
	if err != nil {
		parsedKey, err = x509.ParsePKCS1PrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("private key should be a PEM or plain PKCS1 or PKCS8: %w", err)
		}
	}
	parsed, ok := parsedKey.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not an RSA key")
	}
	return parsed, nil
}
