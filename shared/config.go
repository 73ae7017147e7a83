package shared

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultNotaryKeyPEM is the public key of the reference notary fixture
// (notary-server fixture/notary/notary.key, converted to SPKI PEM).
const DefaultNotaryKeyPEM = `-----BEGIN PUBLIC KEY-----
MFkwEwYHKoZIzj0CAQYIKoZIzj0DAQcDQgAEBv36FI4ZFszJa0DQFJ3wWCXvVLFr
cRzMG5kaTeHGoSzDu6cFqx3uEWYpFGo6C0EOUgf+mEgbktLrXocv5yHzKg==
-----END PUBLIC KEY-----`

const (
	DefaultMaxArtifactBytes  = 16 << 20
	DefaultRedactionMarker   = "X"
	DefaultCollapseThreshold = 100
)

// Config is the process-wide viewer configuration
type Config struct {
	NotaryKey         string   `json:"notary_key"`          // PEM text, file path, address or hex pubkey
	TrustStore        []string `json:"trust_store"`         // PEM/DER/PKCS#7 files; empty means system roots
	MaxArtifactBytes  int      `json:"max_artifact_bytes"`  // upper bound on a single artifact
	RedactionMarker   string   `json:"redaction_marker"`    // glyph printed per withheld byte
	CollapseThreshold int      `json:"collapse_threshold"`  // redactions longer than this are collapsed
	Development       bool     `json:"development"`         // console logging
	LogLevel          string   `json:"log_level,omitempty"` // overrides the mode default
}

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is honoured when present.
func LoadConfig() *Config {
	// .env is optional for a local tool
	_ = godotenv.Load()

	return &Config{
		NotaryKey:         GetEnvOrDefault("PROOF_NOTARY_KEY", DefaultNotaryKeyPEM),
		TrustStore:        splitList(GetEnvOrDefault("PROOF_TRUST_STORE", "")),
		MaxArtifactBytes:  GetEnvIntOrDefault("PROOF_MAX_ARTIFACT_BYTES", DefaultMaxArtifactBytes),
		RedactionMarker:   GetEnvOrDefault("PROOF_REDACTION_MARKER", DefaultRedactionMarker),
		CollapseThreshold: GetEnvIntOrDefault("PROOF_COLLAPSE_THRESHOLD", DefaultCollapseThreshold),
		Development:       GetEnvOrDefault("DEVELOPMENT", "false") == "true",
		LogLevel:          GetEnvOrDefault("LOG_LEVEL", ""),
	}
}

// Helper functions for environment variable handling
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
