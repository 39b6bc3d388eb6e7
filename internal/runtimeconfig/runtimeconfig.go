// Package runtimeconfig loads host process configuration from the
// environment, the way the rest of this codebase's config layer does.
package runtimeconfig

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the component host's process-level configuration.
type Config struct {
	Port             string
	LogLevel         string
	StateDatabaseURL string
	StateBackend     string // "memory" | "redis" | "postgres" | "sqlite"
	RedisAddr        string
	SecretJWTIssuer  string
	SecretJWTKey     string
	OTLPEndpoint     string
	ArtifactCacheDir string
	MaxConcurrentMB  int
}

// Load reads configuration from the environment, applying the same
// defaulting style as the rest of this codebase's config layer: empty
// env vars fall back to development-friendly defaults rather than
// failing closed.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	stateBackend := os.Getenv("STATE_BACKEND")
	if stateBackend == "" {
		stateBackend = "memory"
	}

	stateDBURL := os.Getenv("STATE_DATABASE_URL")
	if stateDBURL == "" {
		stateDBURL = "postgres://compruntime@localhost:5432/compruntime?sslmode=disable"
	}

	redisAddr := os.Getenv("STATE_REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	otlpEndpoint := os.Getenv("OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	cacheDir := os.Getenv("ARTIFACT_CACHE_DIR")
	if cacheDir == "" {
		cacheDir = "/var/cache/compruntime/artifacts"
	}

	maxConcurrentMB := 512
	if v := os.Getenv("MAX_CONCURRENT_MEMORY_MB"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			maxConcurrentMB = parsed
		}
	}

	cfg := &Config{
		Port:             port,
		LogLevel:         logLevel,
		StateDatabaseURL: stateDBURL,
		StateBackend:     stateBackend,
		RedisAddr:        redisAddr,
		SecretJWTIssuer:  os.Getenv("SECRET_JWT_ISSUER"),
		SecretJWTKey:     os.Getenv("SECRET_JWT_KEY"),
		OTLPEndpoint:     otlpEndpoint,
		ArtifactCacheDir: cacheDir,
		MaxConcurrentMB:  maxConcurrentMB,
	}

	if overlayPath := os.Getenv("COMPONENT_RUNTIME_CONFIG_FILE"); overlayPath != "" {
		if err := applyYAMLOverlay(cfg, overlayPath); err != nil {
			// A deployment that points at a broken overlay file wants to
			// know at startup, not silently run on env-only defaults.
			panic(fmt.Sprintf("runtimeconfig: loading %s: %v", overlayPath, err))
		}
	}

	return cfg
}

// overlay mirrors Config's fields as pointers so the YAML file can set a
// subset of values without the zero value of an unset field clobbering
// whatever Load already derived from the environment.
type overlay struct {
	Port             *string `yaml:"port"`
	LogLevel         *string `yaml:"log_level"`
	StateDatabaseURL *string `yaml:"state_database_url"`
	StateBackend     *string `yaml:"state_backend"`
	RedisAddr        *string `yaml:"redis_addr"`
	SecretJWTIssuer  *string `yaml:"secret_jwt_issuer"`
	OTLPEndpoint     *string `yaml:"otlp_endpoint"`
	ArtifactCacheDir *string `yaml:"artifact_cache_dir"`
	MaxConcurrentMB  *int    `yaml:"max_concurrent_memory_mb"`
}

func applyYAMLOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return err
	}
	if o.Port != nil {
		cfg.Port = *o.Port
	}
	if o.LogLevel != nil {
		cfg.LogLevel = *o.LogLevel
	}
	if o.StateDatabaseURL != nil {
		cfg.StateDatabaseURL = *o.StateDatabaseURL
	}
	if o.StateBackend != nil {
		cfg.StateBackend = *o.StateBackend
	}
	if o.RedisAddr != nil {
		cfg.RedisAddr = *o.RedisAddr
	}
	if o.SecretJWTIssuer != nil {
		cfg.SecretJWTIssuer = *o.SecretJWTIssuer
	}
	if o.OTLPEndpoint != nil {
		cfg.OTLPEndpoint = *o.OTLPEndpoint
	}
	if o.ArtifactCacheDir != nil {
		cfg.ArtifactCacheDir = *o.ArtifactCacheDir
	}
	if o.MaxConcurrentMB != nil {
		cfg.MaxConcurrentMB = *o.MaxConcurrentMB
	}
	return nil
}
