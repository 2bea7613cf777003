package extractor

import (
	"fmt"
	"os"
	"strconv"
)

// Environment variables consulted by NewFromEnv
const (
	EnvProvider  = "FACEVAULT_EXTRACTOR"
	EnvModel     = "FACEVAULT_MODEL"
	EnvDetector  = "FACEVAULT_DETECTOR"
	EnvServerURL = "FACEVAULT_EXTRACTOR_URL"
	EnvDimension = "FACEVAULT_DIMENSION"
)

// NewFromEnv builds an extractor from environment configuration.
// FACEVAULT_EXTRACTOR selects the provider: "sidecar" (default) or
// "service"; the latter requires FACEVAULT_EXTRACTOR_URL.
func NewFromEnv() (Extractor, error) {
	model := os.Getenv(EnvModel)
	detector := os.Getenv(EnvDetector)
	dimension := 512
	if raw := os.Getenv(EnvDimension); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid %s: %q", EnvDimension, raw)
		}
		dimension = parsed
	}

	provider := os.Getenv(EnvProvider)
	switch provider {
	case "", "sidecar":
		return NewSidecarExtractor(model, detector, dimension), nil
	case "service":
		url := os.Getenv(EnvServerURL)
		if url == "" {
			return nil, fmt.Errorf("%w: %s requires %s", ErrNoProviderEnabled, provider, EnvServerURL)
		}
		return NewServiceExtractor(url, model, detector, dimension), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrNoProviderEnabled, provider)
	}
}
