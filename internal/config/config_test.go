package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tactician-chess/tactician/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tactician.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "engine:\n  path: stockfish\n")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "stockfish", cfg.Engine.Path)
	assert.Equal(t, 128, cfg.Engine.HashMB)
	assert.Equal(t, time.Minute, cfg.Engine.QueryTimeout)
	assert.Equal(t, 3, cfg.Engine.MaxRespawns)
	assert.Equal(t, 14, cfg.Analysis.Depth)
	assert.Equal(t, 2, cfg.Analysis.Workers)
	assert.Equal(t, 150, cfg.Analysis.BlunderThresholdCP)
	assert.Equal(t, 1000, cfg.Analysis.DecidedCutoffCP)
	assert.Equal(t, 150, cfg.Analysis.AcceptCP)
	assert.Equal(t, 25, cfg.Analysis.EpsilonCP)
	assert.Equal(t, 2, cfg.Analysis.MaxVariants)
	assert.Equal(t, 4, cfg.Analysis.PlateauPlies)
	assert.Equal(t, 100, cfg.Analysis.PlateauBandCP)
	assert.Equal(t, 24, cfg.Analysis.MaxLinePlies)
	assert.Equal(t, 3, cfg.Analysis.MaxForcedPrefix)
	assert.Equal(t, config.PolicyStrict, cfg.Filter.Policy)
	assert.Equal(t, 200, cfg.Classify.WinningCP)
	assert.Equal(t, 20, cfg.Classify.OpeningMaxPly)
	assert.Equal(t, 14, cfg.Classify.EndgameMaterial)
	assert.Equal(t, []string{"pgn", "jsonl"}, cfg.Output.Formats)
	assert.Equal(t, 1, cfg.State.BatchGames)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
engine:
  path: /usr/local/bin/stockfish
  threads: 4
analysis:
  depth: 20
  workers: 8
filter:
  policy: lenient
output:
  formats: [jsonl]
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/usr/local/bin/stockfish", cfg.Engine.Path)
	assert.Equal(t, 4, cfg.Engine.Threads)
	assert.Equal(t, 20, cfg.Analysis.Depth)
	assert.Equal(t, 8, cfg.Analysis.Workers)
	assert.Equal(t, config.PolicyLenient, cfg.Filter.Policy)
	assert.Equal(t, []string{"jsonl"}, cfg.Output.Formats)
	assert.Equal(t, 150, cfg.Analysis.BlunderThresholdCP, "unset keys keep defaults")
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	t.Setenv("TACTICIAN_ANALYSIS_DEPTH", "18")
	t.Setenv("TACTICIAN_ENGINE_PATH", "/opt/engine")

	path := writeConfig(t, "engine:\n  path: stockfish\n")

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 18, cfg.Analysis.Depth)
	assert.Equal(t, "/opt/engine", cfg.Engine.Path, "environment beats the file")
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{
			name:    "empty engine path",
			yaml:    "engine:\n  path: \"\"\n",
			wantErr: config.ErrEnginePathRequired,
		},
		{
			name:    "zero depth",
			yaml:    "engine:\n  path: sf\nanalysis:\n  depth: 0\n",
			wantErr: config.ErrInvalidDepth,
		},
		{
			name:    "negative workers",
			yaml:    "engine:\n  path: sf\nanalysis:\n  workers: -1\n",
			wantErr: config.ErrInvalidWorkers,
		},
		{
			name:    "zero threshold",
			yaml:    "engine:\n  path: sf\nanalysis:\n  blunder_threshold_cp: 0\n",
			wantErr: config.ErrInvalidThreshold,
		},
		{
			name:    "negative epsilon",
			yaml:    "engine:\n  path: sf\nanalysis:\n  epsilon_cp: -5\n",
			wantErr: config.ErrInvalidEpsilon,
		},
		{
			name:    "unknown policy",
			yaml:    "engine:\n  path: sf\nfilter:\n  policy: relaxed\n",
			wantErr: config.ErrInvalidPolicy,
		},
		{
			name:    "unknown format",
			yaml:    "engine:\n  path: sf\noutput:\n  formats: [xml]\n",
			wantErr: config.ErrInvalidFormat,
		},
		{
			name:    "zero batch",
			yaml:    "engine:\n  path: sf\nstate:\n  batch_games: 0\n",
			wantErr: config.ErrInvalidBatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)

			_, err := config.LoadConfig(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tactician.yaml")

	require.NoError(t, config.WriteDefault(path))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err, "the generated default file must load and validate")
	assert.Equal(t, "stockfish", cfg.Engine.Path)
	assert.Equal(t, 14, cfg.Analysis.Depth)
}

func TestWriteDefault_RefusesOverwrite(t *testing.T) {
	path := writeConfig(t, "engine:\n  path: custom\n")

	err := config.WriteDefault(path)
	assert.Error(t, err)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "custom", "an existing file must not be clobbered")
}

func TestDepths(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Analysis.Depth = 14

	depths := cfg.Depths()
	assert.Equal(t, 7, depths.Scan)
	assert.Equal(t, 21, depths.Solve)
	assert.Equal(t, 3, depths.Quick)
}

func TestDepths_NeverBelowOne(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Analysis.Depth = 1

	depths := cfg.Depths()
	assert.Equal(t, 1, depths.Scan)
	assert.Equal(t, 1, depths.Solve)
	assert.Equal(t, 1, depths.Quick)
}
