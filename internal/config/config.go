// Package config loads policy loop configuration from defaults, an optional
// YAML file and POLICY_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// #region types

// Config holds the policy loop configuration.
type Config struct {
	Rounds             int                `yaml:"rounds"`
	WarmupRounds       int                `yaml:"warmupRounds"`
	MinEscalationRound int                `yaml:"minEscalationRound"`
	ParallelCandidates bool               `yaml:"parallelCandidates"`
	LeadsPath          string             `yaml:"leadsPath"`
	Exploration        policy.Exploration `yaml:"exploration"`
	Escalation         EscalationConfig   `yaml:"escalation"`
	Evaluator          EvaluatorConfig    `yaml:"evaluator"`
	Voice              VoiceConfig        `yaml:"voice"`
	Store              StoreConfig        `yaml:"store"`
	Server             ServerConfig       `yaml:"server"`
	Log                LogConfig          `yaml:"log"`
}

// EscalationConfig holds the friction threshold.
type EscalationConfig struct {
	ConversionThreshold float64 `yaml:"conversionThreshold"`
}

// EvaluatorConfig selects and tunes the scoring backend.
type EvaluatorConfig struct {
	Backend      string        `yaml:"backend"` // rule | grpc | gemini
	Timeout      time.Duration `yaml:"timeout"`
	GRPCAddr     string        `yaml:"grpcAddr"`
	GeminiModel  string        `yaml:"geminiModel"`
	GeminiAPIKey string        `yaml:"geminiAPIKey"`
}

// VoiceConfig selects the voice dispatcher.
type VoiceConfig struct {
	Provider   string        `yaml:"provider"` // dryrun | http
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"apiKey"`
	FromNumber string        `yaml:"fromNumber"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StoreConfig selects where policy memory lives.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite | file
	Path   string `yaml:"path"`
}

// ServerConfig configures the HTTP API and scheduled runs.
type ServerConfig struct {
	Addr     string `yaml:"addr"`
	Schedule string `yaml:"schedule"` // cron expression; empty disables
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Backend, provider and driver names.
const (
	BackendRule   = "rule"
	BackendGRPC   = "grpc"
	BackendGemini = "gemini"

	ProviderDryRun = "dryrun"
	ProviderHTTP   = "http"

	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

// #endregion types

// #region defaults

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Rounds:             2,
		WarmupRounds:       1,
		MinEscalationRound: 2,
		ParallelCandidates: true,
		Exploration:        policy.DefaultExploration(),
		Escalation:         EscalationConfig{ConversionThreshold: 0.58},
		Evaluator: EvaluatorConfig{
			Backend:     BackendRule,
			Timeout:     8 * time.Second,
			GRPCAddr:    "localhost:50051",
			GeminiModel: "gemini-2.5-flash",
		},
		Voice: VoiceConfig{
			Provider: ProviderDryRun,
			Timeout:  10 * time.Second,
		},
		Store:  StoreConfig{Driver: DriverSQLite, Path: "policy_memory.db"},
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info"},
	}
}

// #endregion defaults

// #region load

// Load builds a Config. path may be empty; a missing file is an error only
// when path is set.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Rounds = getEnvInt("POLICY_ROUNDS", cfg.Rounds)
	cfg.WarmupRounds = getEnvInt("POLICY_WARMUP_ROUNDS", cfg.WarmupRounds)
	cfg.MinEscalationRound = getEnvInt("POLICY_MIN_ESCALATION_ROUND", cfg.MinEscalationRound)
	cfg.ParallelCandidates = getEnvBool("POLICY_PARALLEL_CANDIDATES", cfg.ParallelCandidates)
	cfg.LeadsPath = envOr("POLICY_LEADS", cfg.LeadsPath)

	cfg.Exploration.Epsilon = getEnvFloat("POLICY_EPSILON", cfg.Exploration.Epsilon)
	cfg.Exploration.Decay = getEnvFloat("POLICY_DECAY", cfg.Exploration.Decay)
	cfg.Exploration.MinEpsilon = getEnvFloat("POLICY_MIN_EPSILON", cfg.Exploration.MinEpsilon)
	cfg.Escalation.ConversionThreshold = getEnvFloat("POLICY_CONVERSION_THRESHOLD", cfg.Escalation.ConversionThreshold)

	cfg.Evaluator.Backend = envOr("POLICY_EVALUATOR", cfg.Evaluator.Backend)
	cfg.Evaluator.Timeout = getEnvDuration("POLICY_EVALUATOR_TIMEOUT", cfg.Evaluator.Timeout)
	cfg.Evaluator.GRPCAddr = envOr("POLICY_JUDGE_ADDR", cfg.Evaluator.GRPCAddr)
	cfg.Evaluator.GeminiModel = envOr("POLICY_GEMINI_MODEL", cfg.Evaluator.GeminiModel)
	cfg.Evaluator.GeminiAPIKey = envOr("POLICY_GEMINI_API_KEY", envOr("GEMINI_API_KEY", cfg.Evaluator.GeminiAPIKey))

	cfg.Voice.Provider = envOr("POLICY_VOICE_PROVIDER", cfg.Voice.Provider)
	cfg.Voice.Endpoint = envOr("POLICY_VOICE_ENDPOINT", cfg.Voice.Endpoint)
	cfg.Voice.APIKey = envOr("POLICY_VOICE_API_KEY", cfg.Voice.APIKey)
	cfg.Voice.FromNumber = envOr("POLICY_VOICE_FROM", cfg.Voice.FromNumber)
	cfg.Voice.Timeout = getEnvDuration("POLICY_VOICE_TIMEOUT", cfg.Voice.Timeout)

	cfg.Store.Driver = envOr("POLICY_STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.Path = envOr("POLICY_STORE_PATH", cfg.Store.Path)

	cfg.Server.Addr = envOr("POLICY_SERVER_ADDR", cfg.Server.Addr)
	cfg.Server.Schedule = envOr("POLICY_SCHEDULE", cfg.Server.Schedule)

	cfg.Log.Level = envOr("POLICY_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Development = getEnvBool("POLICY_LOG_DEV", cfg.Log.Development)
}

// #endregion load

// #region validate

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Rounds < 1 {
		errs = append(errs, fmt.Errorf("rounds must be >= 1, got %d", c.Rounds))
	}
	if c.WarmupRounds < 0 {
		errs = append(errs, fmt.Errorf("warmupRounds must be >= 0, got %d", c.WarmupRounds))
	}
	if err := c.Exploration.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Exploration.Decay <= 0 {
		errs = append(errs, fmt.Errorf("exploration decay must be > 0"))
	}
	if t := c.Escalation.ConversionThreshold; math.IsNaN(t) || t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("escalation conversionThreshold %v outside [0,1]", t))
	}
	switch c.Evaluator.Backend {
	case BackendRule, BackendGRPC, BackendGemini:
	default:
		errs = append(errs, fmt.Errorf("unknown evaluator backend %q", c.Evaluator.Backend))
	}
	if c.Evaluator.Backend == BackendGRPC && c.Evaluator.GRPCAddr == "" {
		errs = append(errs, fmt.Errorf("evaluator grpcAddr required for grpc backend"))
	}
	switch c.Voice.Provider {
	case ProviderDryRun:
	case ProviderHTTP:
		if c.Voice.Endpoint == "" {
			errs = append(errs, fmt.Errorf("voice endpoint required for http provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown voice provider %q", c.Voice.Provider))
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverFile:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store path required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// #endregion validate

// #region env-helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// #endregion env-helpers
