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

package grpctransport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mysticetus/gcp-auth"
	"github.com/mysticetus/gcp-auth/credentials"
)

type staticTP string

func (tp staticTP) Token(context.Context) (*auth.Token, error) {
	return &auth.Token{Value: string(tp)}, nil
}

func TestDial_FailsValidation(t *testing.T) {
	tests := []struct {
		name string
		opts *Options
	}{
		{
			name: "missing options",
		},
		{
			name: "missing endpoint",
			opts: &Options{},
		},
		{
			name: "has creds with disable options",
			opts: &Options{
				Endpoint:              "localhost:8080",
				DisableAuthentication: true,
				Credentials: auth.NewCredentials(&auth.CredentialsOptions{
					TokenProvider: staticTP("fakeToken"),
				}),
			},
		},
		{
			name: "has detect opts with disable options",
			opts: &Options{
				Endpoint:              "localhost:8080",
				DisableAuthentication: true,
				DetectOpts: &credentials.DetectOptions{
					CredentialsFile: "abc.123",
				},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Dial(context.Background(), false, tt.opts); err == nil {
				t.Fatal("Dial() = _, nil, want error")
			}
		})
	}
}

func TestDial_Insecure(t *testing.T) {
	conn, err := Dial(context.Background(), false, &Options{
		Endpoint: "localhost:8080",
		Credentials: auth.NewCredentials(&auth.CredentialsOptions{
			TokenProvider: staticTP("fakeToken"),
		}),
		Metadata: map[string]string{"x-goog-request-params": "database=db"},
	})
	if err != nil {
		t.Fatalf("Dial() = %v", err)
	}
	conn.Close()
}

func TestGRPCCredentialsProvider_GetRequestMetadata(t *testing.T) {
	p := &grpcCredentialsProvider{
		creds: auth.NewCredentials(&auth.CredentialsOptions{
			TokenProvider: staticTP("fakeToken"),
		}),
		quotaProject: "testquota",
	}
	md, err := p.GetRequestMetadata(context.Background())
	if err != nil {
		t.Fatalf("GetRequestMetadata() = %v", err)
	}
	if got, want := md["authorization"], "Bearer fakeToken"; got != want {
		t.Errorf("authorization = %q, want %q", got, want)
	}
	if got, want := md["x-goog-user-project"], "testquota"; got != want {
		t.Errorf("x-goog-user-project = %q, want %q", got, want)
	}
	if p.RequireTransportSecurity() {
		t.Error("RequireTransportSecurity() = true for insecure provider")
	}
}

// countingTP hands out a fresh token per call so revocation is observable.
type countingTP struct {
	mu    sync.Mutex
	count int
}

func (tp *countingTP) Token(context.Context) (*auth.Token, error) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.count++
	return auth.NewToken("tok", time.Now().Add(time.Hour))
}

func (tp *countingTP) getCount() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.count
}

func TestMaybeRevoke(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantRevoke bool
	}{
		{name: "nil error", err: nil, wantRevoke: false},
		{name: "unauthenticated", err: status.Error(codes.Unauthenticated, "expired"), wantRevoke: true},
		{name: "permission denied", err: status.Error(codes.PermissionDenied, "nope"), wantRevoke: true},
		{name: "not found", err: status.Error(codes.NotFound, "missing"), wantRevoke: false},
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), wantRevoke: false},
		{name: "plain error", err: errors.New("boom"), wantRevoke: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp := &countingTP{}
			creds := auth.NewCredentials(&auth.CredentialsOptions{
				TokenProvider: auth.NewCachedTokenProvider(tp, nil),
			})
			if _, err := creds.Token(context.Background()); err != nil {
				t.Fatal(err)
			}

			maybeRevoke(creds, tt.err)

			want := 1
			if tt.wantRevoke {
				// Revocation starts a replacement fetch immediately.
				want = 2
				deadline := time.Now().Add(2 * time.Second)
				for tp.getCount() < want && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}
			}
			if got := tp.getCount(); got != want {
				t.Errorf("provider called %d times, want %d", got, want)
			}
		})
	}
}
