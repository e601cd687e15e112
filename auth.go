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

// Package auth provides bearer-token credentials for Google Cloud services:
// a cached, always-valid token abstraction shared across concurrent callers,
// the two-legged JWT OAuth flow used by service accounts, and the building
// blocks the credential detection pipeline and transports are assembled from.
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2/internallog"
	"github.com/mysticetus/gcp-auth/internal"
	"github.com/mysticetus/gcp-auth/internal/jwt"
)

const (
	// defaultExpireEarly is the refresh skew: a token is treated as expired
	// this long before its actual expiry so it is refreshed while the old one
	// still works.
	defaultExpireEarly = 60 * time.Second

	// defaultTokenLifetime is assumed for sources that do not report an
	// expiry, such as the gcloud CLI.
	defaultTokenLifetime = time.Hour

	defaultGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
)

var (
	defaultHeader = &jwt.Header{Algorithm: jwt.HeaderAlgRSA256, Type: jwt.HeaderType}

	// ErrInvalidTokenShape is returned by NewToken when the raw access token
	// contains bytes that cannot appear in an HTTP header value.
	ErrInvalidTokenShape = errors.New("auth: token contains bytes not allowed in a header value")

	// ErrTokenExpired is returned by Token.ValidFor for tokens inside the
	// refresh skew.
	ErrTokenExpired = errors.New("auth: token expired")

	// for testing
	timeNow = time.Now
)

// TokenProvider specifies an interface for anything that can return a token.
type TokenProvider interface {
	// Token returns a Token or an error. The returned Token must not be
	// modified and must be safe to use concurrently. The provided context
	// must be sent along to any requests that are made in the implementing
	// code.
	Token(context.Context) (*Token, error)
}

// TokenRevoker is implemented by TokenProviders whose tokens can be
// invalidated early, typically in reaction to a 401 or 403 response. If
// startNew is true and no refresh is already in flight, the provider begins
// fetching a replacement immediately.
type TokenRevoker interface {
	Revoke(startNew bool)
}

// Token holds a bearer credential used to authorize requests. All fields are
// considered read-only after construction.
type Token struct {
	// Value is the opaque access token.
	Value string
	// Acquired is the instant the token was obtained.
	Acquired time.Time
	// Expiry is the time the token is set to expire. A zero Expiry means the
	// token never expires.
	Expiry time.Time

	// header is the precomputed "Bearer <Value>" header value.
	header string
}

// NewToken validates value against the HTTP header value grammar and returns
// a Token with its authorization header precomputed. It fails with
// ErrInvalidTokenShape for values that cannot be sent as a header.
func NewToken(value string, expiry time.Time) (*Token, error) {
	if value == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidTokenShape)
	}
	for i := 0; i < len(value); i++ {
		if !validHeaderByte(value[i]) {
			return nil, fmt.Errorf("%w: byte 0x%02x at offset %d", ErrInvalidTokenShape, value[i], i)
		}
	}
	return &Token{
		Value:    value,
		Acquired: timeNow(),
		Expiry:   expiry,
		header:   internal.TokenTypeBearer + " " + value,
	}, nil
}

// valid header value bytes per RFC 9110: visible ASCII, SP and HTAB.
func validHeaderByte(b byte) bool {
	return b == '\t' || (b >= 0x20 && b != 0x7f)
}

// Header returns the value for an Authorization header, "Bearer <token>".
func (t *Token) Header() string {
	if t.header != "" {
		return t.header
	}
	return internal.TokenTypeBearer + " " + t.Value
}

// IsValid reports that a Token is non-nil, has a Value, and is outside the
// default refresh skew.
func (t *Token) IsValid() bool {
	return t.isValidWithEarlyExpiry(defaultExpireEarly)
}

func (t *Token) isValidWithEarlyExpiry(earlyExpiry time.Duration) bool {
	if t == nil || t.Value == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return t.Expiry.Round(0).Add(-earlyExpiry).After(timeNow())
}

// ValidFor returns how long callers may rely on the token, already reduced
// by the refresh skew: for a valid token, now+d+skew <= Expiry. It returns
// ErrTokenExpired once the token is inside the skew.
func (t *Token) ValidFor(now time.Time) (time.Duration, error) {
	if t == nil || t.Value == "" {
		return 0, ErrTokenExpired
	}
	if t.Expiry.IsZero() {
		return defaultTokenLifetime, nil
	}
	d := t.Expiry.Sub(now) - defaultExpireEarly
	if d <= 0 {
		return 0, ErrTokenExpired
	}
	return d, nil
}

// LogValue hides the token bytes from structured logs.
func (t *Token) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("value", "..."),
		slog.Time("expiry", t.Expiry),
	)
}

// CredentialsOptions are used to configure [NewCredentials].
type CredentialsOptions struct {
	// TokenProvider is the underlying provider, required.
	TokenProvider TokenProvider
	// JSON is the raw contents of the credentials file, if one was used.
	JSON []byte
	// ProjectID is the project resolved during detection, optional.
	ProjectID string
	// UniverseDomain is the default service domain for the credential's
	// Cloud universe, optional.
	UniverseDomain string
}

// Credentials is a cheaply copyable handle pairing a TokenProvider with the
// identity resolved during detection.
type Credentials struct {
	TokenProvider

	json           []byte
	projectID      string
	universeDomain string
}

// NewCredentials returns a [Credentials] from the options provided.
func NewCredentials(opts *CredentialsOptions) *Credentials {
	return &Credentials{
		TokenProvider:  opts.TokenProvider,
		json:           opts.JSON,
		projectID:      opts.ProjectID,
		universeDomain: opts.UniverseDomain,
	}
}

// JSON returns the bytes associated with the file used to source the
// credentials, if one was used.
func (c *Credentials) JSON() []byte {
	return c.json
}

// ProjectID returns the project ID associated with the credential, or the
// empty string if none was resolved.
func (c *Credentials) ProjectID() string {
	return c.projectID
}

// UniverseDomain returns the default service domain for the credential's
// Cloud universe. The default value is "googleapis.com".
func (c *Credentials) UniverseDomain() string {
	if c.universeDomain == "" {
		return internal.DefaultUniverseDomain
	}
	return c.universeDomain
}

// Revoke discards any cached token so the next use fetches a fresh one. It
// is a no-op for providers that do not cache.
func (c *Credentials) Revoke(startNew bool) {
	if tr, ok := c.TokenProvider.(TokenRevoker); ok {
		tr.Revoke(startNew)
	}
}

// Error is an error returned by a token endpoint. It holds useful additional
// details for debugging.
type Error struct {
	// Response is the HTTP response associated with the error. The body will
	// always be already closed and consumed.
	Response *http.Response
	// Body is the HTTP response body.
	Body []byte
	// Err is the underlying wrapped error.
	Err error

	// uri the request was sent to.
	uri string
}

// NewResponseError builds an *Error from a non-2xx token endpoint response.
// The body must already be fully read; uri is the endpoint the request was
// sent to.
func NewResponseError(resp *http.Response, body []byte, uri string) *Error {
	return &Error{Response: resp, Body: body, uri: uri}
}

func (e *Error) Error() string {
	status := 0
	if e.Response != nil {
		status = e.Response.StatusCode
	}
	if msg := extractErrorMessage(e.Body); msg != "" {
		return fmt.Sprintf("auth: %s returned %d: %s", e.uri, status, msg)
	}
	return fmt.Sprintf("auth: %s returned %d: %s", e.uri, status, e.Body)
}

// Temporary reports whether the error may succeed if retried: 5xx, 408 and
// 429 statuses are temporary, all other statuses are fatal.
func (e *Error) Temporary() bool {
	if e.Response == nil {
		return false
	}
	sc := e.Response.StatusCode
	return sc == http.StatusInternalServerError ||
		sc == http.StatusServiceUnavailable ||
		sc == http.StatusBadGateway ||
		sc == http.StatusRequestTimeout ||
		sc == http.StatusTooManyRequests
}

func (e *Error) Unwrap() error {
	return e.Err
}

// extractErrorMessage pulls a human-readable message out of an error payload:
// the first of "message" or "error" if the body is a JSON object, otherwise
// the longest string value found in it. Returns "" for non-JSON bodies.
func extractErrorMessage(body []byte) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	for _, key := range []string{"message", "error"} {
		var s string
		if raw, ok := m[key]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
	}
	var longest string
	for _, raw := range m {
		var s string
		if json.Unmarshal(raw, &s) == nil && len(s) > len(longest) {
			longest = s
		}
	}
	return longest
}

// Options2LO is the configuration for the two-legged JWT OAuth flow used by
// service accounts.
type Options2LO struct {
	// Email is the service account email, set as the "iss" claim.
	Email string
	// PrivateKey contains the contents of a PEM encoded RSA private key used
	// to sign the JWT.
	PrivateKey []byte
	// PrivateKeyID is the ID of the signing key, set as the "kid" header.
	// Optional.
	PrivateKeyID string
	// Subject is the user email to impersonate for domain-wide delegation,
	// set as the "sub" claim. Optional.
	Subject string
	// Scopes requested for the token.
	Scopes Scopes
	// TokenURL is the endpoint the signed JWT is exchanged at.
	TokenURL string
	// Audience overrides the "aud" claim, which defaults to TokenURL.
	// Optional.
	Audience string
	// Client is used to make the token exchange request. Optional.
	Client *http.Client
	// Logger for debug logging. Optional.
	Logger *slog.Logger
}

func (o *Options2LO) validate() error {
	if o == nil {
		return errors.New("auth: options must be provided")
	}
	if o.Email == "" {
		return errors.New("auth: email must be provided")
	}
	if len(o.PrivateKey) == 0 {
		return errors.New("auth: private key must be provided")
	}
	if o.TokenURL == "" {
		return errors.New("auth: token URL must be provided")
	}
	return nil
}

func (o *Options2LO) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return internal.DefaultClient()
}

func (o *Options2LO) logger() *slog.Logger {
	return internallog.New(o.Logger)
}

// New2LOTokenProvider returns a TokenProvider from the options provided. The
// private key is parsed once up front, so a rejected key fails here rather
// than on the first token fetch.
func New2LOTokenProvider(opts *Options2LO) (TokenProvider, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	pk, err := internal.ParseKey(opts.PrivateKey)
	if err != nil {
		return nil, err
	}
	return tokenProvider2LO{opts: opts, signer: pk, client: opts.client()}, nil
}

type tokenProvider2LO struct {
	opts   *Options2LO
	signer *rsa.PrivateKey
	client *http.Client
}

func (tp tokenProvider2LO) Token(ctx context.Context) (*Token, error) {
	now := timeNow()
	claims := &jwt.Claims{
		Iss:   tp.opts.Email,
		Scope: tp.opts.Scopes.Encode(),
		Aud:   tp.opts.TokenURL,
		Iat:   now.Unix(),
		Exp:   now.Add(time.Hour).Unix(),
	}
	if aud := tp.opts.Audience; aud != "" {
		claims.Aud = aud
	}
	if sub := tp.opts.Subject; sub != "" {
		claims.Sub = sub
	}
	h := *defaultHeader
	h.KeyID = tp.opts.PrivateKeyID
	assertion, err := jwt.EncodeJWS(&h, claims, tp.signer)
	if err != nil {
		return nil, err
	}
	v := url.Values{}
	v.Set("grant_type", defaultGrantType)
	v.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tp.opts.TokenURL, strings.NewReader(v.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	logger := tp.opts.logger()
	logger.DebugContext(ctx, "2LO token request", "url", tp.opts.TokenURL)
	resp, err := tp.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: cannot fetch token: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("auth: cannot fetch token: %w", err)
	}
	logger.DebugContext(ctx, "2LO token response", "status", resp.StatusCode)
	if c := resp.StatusCode; c < 200 || c > 299 {
		return nil, &Error{Response: resp, Body: body, uri: tp.opts.TokenURL}
	}
	return parseTokenResponse(body)
}

// parseTokenResponse decodes an {access_token, expires_in} payload shared by
// the OAuth and metadata token endpoints.
func parseTokenResponse(body []byte) (*Token, error) {
	var res struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("auth: cannot parse token response: %w", err)
	}
	if res.AccessToken == "" {
		return nil, errors.New("auth: token response missing access_token")
	}
	expiry := timeNow().Add(time.Duration(res.ExpiresIn) * time.Second)
	return NewToken(res.AccessToken, expiry)
}
