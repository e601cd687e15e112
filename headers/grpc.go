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

package headers

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// AppendToOutgoing returns ctx with the routing params added to the outgoing
// gRPC metadata.
func (p RequestParams) AppendToOutgoing(ctx context.Context) context.Context {
	if p.IsEmpty() {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, RequestParamsHeader, p.Encode())
}

// UnaryClientInterceptor returns an interceptor that attaches the fixed
// metadata pairs to every unary RPC.
func UnaryClientInterceptor(pairs ...string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if len(pairs) > 0 {
			ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor returns an interceptor that attaches the fixed
// metadata pairs to every streaming RPC.
func StreamClientInterceptor(pairs ...string) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		if len(pairs) > 0 {
			ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
		}
		return streamer(ctx, desc, cc, method, opts...)
	}
}
