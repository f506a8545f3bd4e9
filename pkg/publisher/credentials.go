package publisher

import (
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// CredentialsProvider supplies the client options that authenticate the
// transport. When no provider is given, Application Default Credentials are used.
type CredentialsProvider interface {
	ClientOptions() []option.ClientOption
}

// CredentialsProviderFunc adapts a function to CredentialsProvider.
type CredentialsProviderFunc func() []option.ClientOption

func (f CredentialsProviderFunc) ClientOptions() []option.ClientOption {
	return f()
}

// CredentialsFile authenticates with a service account key file.
func CredentialsFile(path string) CredentialsProvider {
	return CredentialsProviderFunc(func() []option.ClientOption {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	})
}

// CredentialsJSON authenticates with an in-memory service account key.
func CredentialsJSON(key []byte) CredentialsProvider {
	return CredentialsProviderFunc(func() []option.ClientOption {
		return []option.ClientOption{option.WithCredentialsJSON(key)}
	})
}

// TokenSource authenticates with tokens from ts.
func TokenSource(ts oauth2.TokenSource) CredentialsProvider {
	return CredentialsProviderFunc(func() []option.ClientOption {
		return []option.ClientOption{option.WithTokenSource(ts)}
	})
}

// Insecure connects to endpoint without authentication or TLS, as required by
// the Pub/Sub emulator and pstest.
func Insecure(endpoint string) CredentialsProvider {
	return CredentialsProviderFunc(func() []option.ClientOption {
		return []option.ClientOption{
			option.WithEndpoint(endpoint),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		}
	})
}
