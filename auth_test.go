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
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mysticetus/gcp-auth/internal/jwt"
)

func TestNewToken(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "plain", value: "ya29.c.abc123"},
		{name: "spaces allowed", value: "a b"},
		{name: "empty", value: "", wantErr: true},
		{name: "newline", value: "abc\ndef", wantErr: true},
		{name: "carriage return", value: "abc\rdef", wantErr: true},
		{name: "nul", value: "abc\x00def", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := NewToken(tt.value, time.Now().Add(time.Hour))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTokenShape) {
					t.Fatalf("NewToken() = %v, want ErrInvalidTokenShape", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewToken() = %v", err)
			}
			if got, want := tok.Header(), "Bearer "+tt.value; got != want {
				t.Errorf("Header() = %q, want %q", got, want)
			}
		})
	}
}

func TestToken_ValidFor(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		expiry  time.Time
		want    time.Duration
		wantErr bool
	}{
		{
			name:   "well before skew",
			expiry: now.Add(time.Hour),
			want:   time.Hour - defaultExpireEarly,
		},
		{
			name:    "exactly at skew boundary",
			expiry:  now.Add(defaultExpireEarly),
			wantErr: true,
		},
		{
			name:   "one second beyond skew",
			expiry: now.Add(defaultExpireEarly + time.Second),
			want:   time.Second,
		},
		{
			name:    "already expired",
			expiry:  now.Add(-time.Minute),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := &Token{Value: "tok", Expiry: tt.expiry}
			d, err := tok.ValidFor(now)
			if tt.wantErr {
				if !errors.Is(err, ErrTokenExpired) {
					t.Fatalf("ValidFor() = %v, want ErrTokenExpired", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidFor() = %v", err)
			}
			if d != tt.want {
				t.Errorf("ValidFor() = %v, want %v", d, tt.want)
			}
			// A caller sleeping for the full window must still be ahead of
			// expiry by the skew.
			if now.Add(d + defaultExpireEarly).After(tok.Expiry) {
				t.Errorf("now+d+skew = %v is after expiry %v", now.Add(d+defaultExpireEarly), tok.Expiry)
			}
		})
	}
}

func TestToken_IsValid(t *testing.T) {
	now := time.Now()
	timeNow = func() time.Time { return now }
	defer func() { timeNow = time.Now }()

	tests := []struct {
		name string
		tok  *Token
		want bool
	}{
		{name: "nil", tok: nil, want: false},
		{name: "no value", tok: &Token{}, want: false},
		{name: "zero expiry never expires", tok: &Token{Value: "t"}, want: true},
		{name: "fresh", tok: &Token{Value: "t", Expiry: now.Add(time.Hour)}, want: true},
		{name: "inside skew", tok: &Token{Value: "t", Expiry: now.Add(30 * time.Second)}, want: false},
		{name: "expired", tok: &Token{Value: "t", Expiry: now.Add(-time.Hour)}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.tok.IsValid(); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_Temporary(t *testing.T) {
	tests := []struct {
		name string
		code int
		want bool
	}{
		{name: "temporary with 500", code: 500, want: true},
		{name: "temporary with 503", code: 503, want: true},
		{name: "temporary with 408", code: 408, want: true},
		{name: "temporary with 429", code: 429, want: true},
		{name: "not temporary with 400", code: 400, want: false},
		{name: "not temporary with 401", code: 401, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Error{Response: &http.Response{StatusCode: tt.code}}
			if got := e.Temporary(); got != tt.want {
				t.Errorf("Temporary() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_MessageExtraction(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "message field",
			body: `{"message": "invalid grant", "error": "also here"}`,
			want: "invalid grant",
		},
		{
			name: "error field",
			body: `{"error": "invalid_grant", "error_description": "x"}`,
			want: "invalid_grant",
		},
		{
			name: "longest string fallback",
			body: `{"status": "bad", "detail": "the much longer explanation", "code": 400}`,
			want: "the much longer explanation",
		},
		{
			name: "non-JSON body",
			body: "<html>nope</html>",
			want: "<html>nope</html>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Error{
				Response: &http.Response{StatusCode: 400},
				Body:     []byte(tt.body),
				uri:      "https://example.com/token",
			}
			got := e.Error()
			if want := "https://example.com/token returned 400: " + tt.want; !containsSuffix(got, want) {
				t.Errorf("Error() = %q, want suffix %q", got, want)
			}
		})
	}
}

func containsSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func testPrivateKeyPEM(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	b := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(pk),
	})
	return pk, b
}

func Test2LOTokenProvider(t *testing.T) {
	pk, pemBytes := testPrivateKeyPEM(t)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		if got, want := r.FormValue("grant_type"), defaultGrantType; got != want {
			t.Errorf("grant_type = %q, want %q", got, want)
		}
		assertion := r.FormValue("assertion")
		if err := jwt.VerifyJWS(assertion, &pk.PublicKey); err != nil {
			t.Errorf("VerifyJWS() = %v", err)
		}
		claims, err := jwt.DecodeJWS(assertion)
		if err != nil {
			t.Errorf("DecodeJWS() = %v", err)
			return
		}
		if got, want := claims.Iss, "sa@fake-project.iam.gserviceaccount.com"; got != want {
			t.Errorf("iss = %q, want %q", got, want)
		}
		if got, want := claims.Scope, ScopeCloudPlatform; got != want {
			t.Errorf("scope = %q, want %q", got, want)
		}
		if got, want := claims.Exp-claims.Iat, int64(3600); got != want {
			t.Errorf("exp-iat = %d, want %d", got, want)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "a-fake-token",
			"expires_in":   3600,
			"token_type":   "Bearer",
		})
	}))
	defer ts.Close()

	tp, err := New2LOTokenProvider(&Options2LO{
		Email:      "sa@fake-project.iam.gserviceaccount.com",
		PrivateKey: pemBytes,
		Scopes:     NewScopes(ScopeCloudPlatform),
		TokenURL:   ts.URL,
		Client:     ts.Client(),
	})
	if err != nil {
		t.Fatalf("New2LOTokenProvider() = %v", err)
	}
	tok, err := tp.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() = %v", err)
	}
	if got, want := tok.Value, "a-fake-token"; got != want {
		t.Errorf("tok.Value = %q, want %q", got, want)
	}
	if got, want := tok.Header(), "Bearer a-fake-token"; got != want {
		t.Errorf("tok.Header() = %q, want %q", got, want)
	}
	if !tok.IsValid() {
		t.Error("tok.IsValid() = false, want true")
	}
}

func Test2LOTokenProvider_BadResponse(t *testing.T) {
	_, pemBytes := testPrivateKeyPEM(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant"}`))
	}))
	defer ts.Close()

	tp, err := New2LOTokenProvider(&Options2LO{
		Email:      "sa@fake-project.iam.gserviceaccount.com",
		PrivateKey: pemBytes,
		TokenURL:   ts.URL,
		Client:     ts.Client(),
	})
	if err != nil {
		t.Fatalf("New2LOTokenProvider() = %v", err)
	}
	_, err = tp.Token(context.Background())
	var aErr *Error
	if !errors.As(err, &aErr) {
		t.Fatalf("Token() = %v, want *Error", err)
	}
	if aErr.Temporary() {
		t.Error("Temporary() = true for 400, want false")
	}
}

func Test2LOTokenProvider_RejectsBadKey(t *testing.T) {
	_, err := New2LOTokenProvider(&Options2LO{
		Email:      "sa@fake-project.iam.gserviceaccount.com",
		PrivateKey: []byte("not a key"),
		TokenURL:   "https://example.com/token",
	})
	if err == nil {
		t.Fatal("New2LOTokenProvider() = nil, want key parse error")
	}
}

func TestOptions2LO_Validate(t *testing.T) {
	tests := []struct {
		name string
		opts *Options2LO
	}{
		{name: "nil options"},
		{name: "missing email", opts: &Options2LO{PrivateKey: []byte("k"), TokenURL: "u"}},
		{name: "missing key", opts: &Options2LO{Email: "e", TokenURL: "u"}},
		{name: "missing token URL", opts: &Options2LO{Email: "e", PrivateKey: []byte("k")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New2LOTokenProvider(tt.opts); err == nil {
				t.Fatal("New2LOTokenProvider() = nil, want error")
			}
		})
	}
}
