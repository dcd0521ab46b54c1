// Package config provides configuration loading and validation for the
// tactician pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Sentinel validation errors.
var (
	ErrEnginePathRequired = errors.New("engine path is required")
	ErrInvalidDepth       = errors.New("analysis depth must be positive")
	ErrInvalidWorkers     = errors.New("worker count must be positive")
	ErrInvalidThreshold   = errors.New("blunder threshold must be positive")
	ErrInvalidAcceptance  = errors.New("acceptance threshold must be positive")
	ErrInvalidEpsilon     = errors.New("ambiguity epsilon must be non-negative")
	ErrInvalidVariants    = errors.New("max variants must be non-negative")
	ErrInvalidPlateau     = errors.New("plateau length must be positive")
	ErrInvalidLineLength  = errors.New("max line length must be positive")
	ErrInvalidPolicy      = errors.New("ambiguity policy must be strict or lenient")
	ErrInvalidFormat      = errors.New("unknown export format")
	ErrInvalidBatch       = errors.New("checkpoint batch must be positive")
)

// Default configuration values.
const (
	defaultDepth          = 14
	defaultWorkers        = 2
	defaultThresholdCP    = 150
	defaultDecidedCP      = 1000
	defaultAcceptCP       = 150
	defaultEpsilonCP      = 25
	defaultPlateauPlies   = 4
	defaultPlateauBandCP  = 100
	defaultMaxLinePlies   = 24
	defaultMaxVariants    = 2
	defaultEndGuardPlies  = 2
	defaultForcedPrefix   = 3
	defaultWinningCP      = 200
	defaultOpeningMaxPly  = 20
	defaultEndgameMat     = 14
	defaultBatchGames     = 1
	defaultEngineThreads  = 1
	defaultEngineHashMB   = 128
	defaultCacheEntries   = 100_000
	defaultMaxRespawns    = 3
	defaultQueryTimeout   = time.Minute
	defaultConfigFileMode = 0o644
)

// Config holds all configuration for a tactician run.
type Config struct {
	Engine        EngineConfig        `mapstructure:"engine"`
	Analysis      AnalysisConfig      `mapstructure:"analysis"`
	Filter        FilterConfig        `mapstructure:"filter"`
	Classify      ClassifyConfig      `mapstructure:"classify"`
	Output        OutputConfig        `mapstructure:"output"`
	State         StateConfig         `mapstructure:"state"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// EngineConfig holds UCI engine process settings.
type EngineConfig struct {
	Path         string        `mapstructure:"path"`
	Args         []string      `mapstructure:"args"`
	Threads      int           `mapstructure:"threads"`
	HashMB       int           `mapstructure:"hash_mb"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
	MaxRespawns  int           `mapstructure:"max_respawns"`
	CacheEntries int           `mapstructure:"cache_entries"`
	CacheFile    string        `mapstructure:"cache_file"`
}

// AnalysisConfig holds detection and line-building settings.
type AnalysisConfig struct {
	Depth              int `mapstructure:"depth"`
	Workers            int `mapstructure:"workers"`
	BlunderThresholdCP int `mapstructure:"blunder_threshold_cp"`
	DecidedCutoffCP    int `mapstructure:"decided_cutoff_cp"`
	EndGuardPlies      int `mapstructure:"end_guard_plies"`
	AcceptCP           int `mapstructure:"accept_cp"`
	EpsilonCP          int `mapstructure:"epsilon_cp"`
	MaxVariants        int `mapstructure:"max_variants"`
	PlateauPlies       int `mapstructure:"plateau_plies"`
	PlateauBandCP      int `mapstructure:"plateau_band_cp"`
	MaxLinePlies       int `mapstructure:"max_line_plies"`
	MaxForcedPrefix    int `mapstructure:"max_forced_prefix"`
}

// FilterConfig holds ambiguity filter settings.
type FilterConfig struct {
	Policy string `mapstructure:"policy"`
}

// ClassifyConfig holds puzzle classification thresholds.
type ClassifyConfig struct {
	WinningCP       int `mapstructure:"winning_cp"`
	OpeningMaxPly   int `mapstructure:"opening_max_ply"`
	EndgameMaterial int `mapstructure:"endgame_material"`
}

// OutputConfig holds export destinations.
type OutputConfig struct {
	Dir     string   `mapstructure:"dir"`
	Formats []string `mapstructure:"formats"`
}

// StateConfig holds checkpoint settings.
type StateConfig struct {
	Dir        string `mapstructure:"dir"`
	BatchGames int    `mapstructure:"batch_games"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// ObservabilityConfig holds optional metrics/tracing endpoints.
type ObservabilityConfig struct {
	MetricsAddr   string `mapstructure:"metrics_addr"`
	TraceEndpoint string `mapstructure:"trace_endpoint"`
}

// Depths are the per-stage search depths derived from the base depth.
// Scanning uses a shallow pass, solving a deep one, and quick probes
// (forced-sequence checks) the shallowest.
type Depths struct {
	Scan  int
	Solve int
	Quick int
}

// Depths derives the per-stage depths from the configured base depth.
func (c *Config) Depths() Depths {
	base := c.Analysis.Depth

	return Depths{
		Scan:  maxInt(1, base/2),
		Solve: maxInt(1, base*3/2),
		Quick: maxInt(1, base/4),
	}
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("tactician")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("$HOME/.tactician")
	}

	viperCfg.SetEnvPrefix("TACTICIAN")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// defaults is the single source of default values, consumed by both viper
// and the generated config file.
func defaults() map[string]any {
	return map[string]any{
		"engine": map[string]any{
			"path":          "stockfish",
			"args":          []string{},
			"threads":       defaultEngineThreads,
			"hash_mb":       defaultEngineHashMB,
			"query_timeout": defaultQueryTimeout.String(),
			"max_respawns":  defaultMaxRespawns,
			"cache_entries": defaultCacheEntries,
			"cache_file":    "",
		},
		"analysis": map[string]any{
			"depth":                defaultDepth,
			"workers":              defaultWorkers,
			"blunder_threshold_cp": defaultThresholdCP,
			"decided_cutoff_cp":    defaultDecidedCP,
			"end_guard_plies":      defaultEndGuardPlies,
			"accept_cp":            defaultAcceptCP,
			"epsilon_cp":           defaultEpsilonCP,
			"max_variants":         defaultMaxVariants,
			"plateau_plies":        defaultPlateauPlies,
			"plateau_band_cp":      defaultPlateauBandCP,
			"max_line_plies":       defaultMaxLinePlies,
			"max_forced_prefix":    defaultForcedPrefix,
		},
		"filter": map[string]any{
			"policy": PolicyStrict,
		},
		"classify": map[string]any{
			"winning_cp":       defaultWinningCP,
			"opening_max_ply":  defaultOpeningMaxPly,
			"endgame_material": defaultEndgameMat,
		},
		"output": map[string]any{
			"dir":     "puzzles",
			"formats": []string{"pgn", "jsonl"},
		},
		"state": map[string]any{
			"dir":         "",
			"batch_games": defaultBatchGames,
		},
		"logging": map[string]any{
			"level": "info",
			"json":  false,
		},
		"observability": map[string]any{
			"metrics_addr":   "",
			"trace_endpoint": "",
		},
	}
}

// Ambiguity policies.
const (
	PolicyStrict  = "strict"
	PolicyLenient = "lenient"
)

// Recognized export formats.
const (
	FormatPGN   = "pgn"
	FormatJSONL = "jsonl"
)

// setDefaults registers the default tree with viper.
func setDefaults(viperCfg *viper.Viper) {
	for section, values := range defaults() {
		sectionMap, ok := values.(map[string]any)
		if !ok {
			continue
		}

		for key, value := range sectionMap {
			viperCfg.SetDefault(section+"."+key, value)
		}
	}
}

// WriteDefault writes the default configuration as YAML to path.
// Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	_, statErr := os.Stat(path)
	if statErr == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	data, marshalErr := yaml.Marshal(defaults())
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal defaults: %w", marshalErr)
	}

	writeErr := os.WriteFile(path, data, defaultConfigFileMode)
	if writeErr != nil {
		return fmt.Errorf("failed to write config file: %w", writeErr)
	}

	return nil
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if config.Engine.Path == "" {
		return ErrEnginePathRequired
	}

	if config.Analysis.Depth <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDepth, config.Analysis.Depth)
	}

	if config.Analysis.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, config.Analysis.Workers)
	}

	if config.Analysis.BlunderThresholdCP <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreshold, config.Analysis.BlunderThresholdCP)
	}

	if config.Analysis.AcceptCP <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAcceptance, config.Analysis.AcceptCP)
	}

	if config.Analysis.EpsilonCP < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidEpsilon, config.Analysis.EpsilonCP)
	}

	if config.Analysis.MaxVariants < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidVariants, config.Analysis.MaxVariants)
	}

	if config.Analysis.PlateauPlies <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPlateau, config.Analysis.PlateauPlies)
	}

	if config.Analysis.MaxLinePlies <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLineLength, config.Analysis.MaxLinePlies)
	}

	if config.Filter.Policy != PolicyStrict && config.Filter.Policy != PolicyLenient {
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, config.Filter.Policy)
	}

	if config.State.BatchGames <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatch, config.State.BatchGames)
	}

	for _, format := range config.Output.Formats {
		if format != FormatPGN && format != FormatJSONL {
			return fmt.Errorf("%w: %q", ErrInvalidFormat, format)
		}
	}

	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}

	return b
}
