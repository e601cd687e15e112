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

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mysticetus/gcp-auth"
)

// revokeUnaryInterceptor discards the cached token when an RPC comes back
// Unauthenticated or PermissionDenied, starting a replacement fetch
// immediately. The failed RPC is never retried here; the status is passed
// back to the caller unchanged.
func revokeUnaryInterceptor(creds *auth.Credentials) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		err := invoker(ctx, method, req, reply, cc, opts...)
		maybeRevoke(creds, err)
		return err
	}
}

func revokeStreamInterceptor(creds *auth.Credentials) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		cs, err := streamer(ctx, desc, cc, method, opts...)
		maybeRevoke(creds, err)
		return cs, err
	}
}

func maybeRevoke(creds *auth.Credentials, err error) {
	if err == nil {
		return
	}
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		creds.Revoke(true)
	}
}
