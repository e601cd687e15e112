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

// Package grpctransport provides bearer-authenticated gRPC connections.
package grpctransport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	grpccreds "google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mysticetus/gcp-auth"
	"github.com/mysticetus/gcp-auth/credentials"
	"github.com/mysticetus/gcp-auth/headers"
	"github.com/mysticetus/gcp-auth/internal"
)

// Options used to configure a connection from [Dial].
type Options struct {
	// DisableAuthentication specifies that no authentication should be used.
	// It is mutually exclusive with Credentials and DetectOpts.
	DisableAuthentication bool
	// DisableTelemetry specifies that metrics and tracing should be disabled.
	DisableTelemetry bool
	// Endpoint overrides the default endpoint to be used for a service.
	Endpoint string
	// Metadata is extra gRPC metadata that will be appended to every
	// outgoing RPC.
	Metadata map[string]string
	// GRPCDialOpts are dial options that will be passed through to the
	// underlying connection.
	GRPCDialOpts []grpc.DialOption
	// Credentials used to add authorization metadata to all RPCs. If not
	// provided [credentials.DetectDefault] resolves them.
	Credentials *auth.Credentials
	// DetectOpts configures settings for detecting default credentials.
	DetectOpts *credentials.DetectOptions
	// Logger for debug logging. Optional.
	Logger *slog.Logger
}

func (o *Options) validate() error {
	if o == nil {
		return errors.New("grpctransport: options must be provided")
	}
	if o.Endpoint == "" {
		return errors.New("grpctransport: endpoint must be provided")
	}
	hasCreds := o.Credentials != nil ||
		(o.DetectOpts != nil && len(o.DetectOpts.CredentialsJSON) > 0) ||
		(o.DetectOpts != nil && o.DetectOpts.CredentialsFile != "")
	if o.DisableAuthentication && hasCreds {
		return errors.New("grpctransport: DisableAuthentication is incompatible with options that set or detect credentials")
	}
	return nil
}

func (o *Options) resolveDetectOptions() *credentials.DetectOptions {
	if o.DetectOpts == nil {
		return &credentials.DetectOptions{
			Scopes: auth.NewScopes(auth.ScopeCloudPlatform),
			Logger: o.Logger,
		}
	}
	do := *o.DetectOpts
	if do.Logger == nil {
		do.Logger = o.Logger
	}
	return &do
}

func (o *Options) resolveCredentials() (*auth.Credentials, error) {
	if o.Credentials != nil {
		return o.Credentials, nil
	}
	return credentials.DetectDefault(o.resolveDetectOptions())
}

// Dial returns a connection to the endpoint that authorizes every RPC with a
// bearer token from the configured or detected credentials. secure selects
// TLS; emulator endpoints are typically dialed with secure set to false.
func Dial(ctx context.Context, secure bool, opts *Options) (*grpc.ClientConn, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	transportCreds := grpccreds.NewTLS(&tls.Config{})
	if !secure {
		transportCreds = insecure.NewCredentials()
	}
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(transportCreds)}

	if !opts.DisableAuthentication {
		creds, err := opts.resolveCredentials()
		if err != nil {
			return nil, err
		}
		dialOpts = append(dialOpts,
			grpc.WithPerRPCCredentials(&grpcCredentialsProvider{
				creds:        creds,
				secure:       secure,
				quotaProject: os.Getenv(internal.QuotaProjectEnvVar),
			}),
			grpc.WithChainUnaryInterceptor(revokeUnaryInterceptor(creds)),
			grpc.WithChainStreamInterceptor(revokeStreamInterceptor(creds)),
		)
	}
	if md := metadataPairs(opts.Metadata); len(md) > 0 {
		dialOpts = append(dialOpts,
			grpc.WithChainUnaryInterceptor(headers.UnaryClientInterceptor(md...)),
			grpc.WithChainStreamInterceptor(headers.StreamClientInterceptor(md...)),
		)
	}
	if !opts.DisableTelemetry {
		dialOpts = append(dialOpts, grpc.WithStatsHandler(otelgrpc.NewClientHandler()))
	}
	dialOpts = append(dialOpts, opts.GRPCDialOpts...)
	return grpc.NewClient(opts.Endpoint, dialOpts...)
}

func metadataPairs(m map[string]string) []string {
	pairs := make([]string, 0, 2*len(m))
	for k, v := range m {
		pairs = append(pairs, k, v)
	}
	return pairs
}

// grpcCredentialsProvider satisfies
// [google.golang.org/grpc/credentials.PerRPCCredentials].
type grpcCredentialsProvider struct {
	creds        *auth.Credentials
	secure       bool
	quotaProject string
}

func (c *grpcCredentialsProvider) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}
	if c.secure {
		ri, _ := grpccreds.RequestInfoFromContext(ctx)
		if err = grpccreds.CheckSecurityLevel(ri.AuthInfo, grpccreds.PrivacyAndIntegrity); err != nil {
			return nil, fmt.Errorf("unable to transfer credentials PerRPCCredentials: %v", err)
		}
	}
	md := map[string]string{"authorization": token.Header()}
	if c.quotaProject != "" {
		md[headers.UserProjectHeader] = c.quotaProject
	}
	return md, nil
}

func (c *grpcCredentialsProvider) RequireTransportSecurity() bool {
	return c.secure
}
