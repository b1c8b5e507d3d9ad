package config

import (
	"context"
	"os"
)

// EnvVarProvider resolves secrets straight from the process environment.
// Local runs of the worker and the job-runner tool use it so a .env file is
// enough to exercise scans without touching SSM.
type EnvVarProvider struct{}

// NewEnvVarProvider creates an EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch looks each key up with os.LookupEnv. Keys absent from
// the environment are omitted from the result rather than erroring; the
// loader's validation decides whether the gap matters.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}
