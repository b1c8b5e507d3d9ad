package config

import "context"

// SecretProvider resolves the secret values the expiry workers need at cold
// start (the SendGrid key, the tenant SMTP cipher key, the database URL).
// Production resolves through AWS SSM Parameter Store; local runs read the
// environment directly. The loader only depends on this interface, so tests
// inject a canned provider.
type SecretProvider interface {
	// GetParametersBatch resolves the given parameter paths and returns a
	// map of path to plaintext value. A missing path is an error for the
	// SSM implementation and a silent omission for the env one; the loader
	// treats an unresolved required secret as a validation failure either
	// way.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
