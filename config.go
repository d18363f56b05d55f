package recorder

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-recorder/flags"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	EventsFile   string // JSON-lines engine event log
	ResultsDir   string // Where result and container files are written
	SettingsFile string // Optional yaml or toml settings
	Concurrency  int    // Workers replayed at once (0 = one goroutine per worker)
	ShowFixtures bool
	HealthzAddr  string
	Metrics      opmetrics.CLIConfig
	Log          log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	eventsFile, err := absPath("events file", ctx.String(flags.Events.Name))
	if err != nil {
		return nil, err
	}
	if eventsFile == "" {
		return nil, errors.New("events file is required")
	}
	resultsDir := ctx.String(flags.ResultsDir.Name)
	if resultsDir == "" {
		resultsDir = flags.ResultsDir.Value
	}
	if resultsDir, err = absPath("results dir", resultsDir); err != nil {
		return nil, err
	}
	settingsFile, err := absPath("settings file", ctx.String(flags.Settings.Name))
	if err != nil {
		return nil, err
	}

	concurrency := ctx.Int(flags.Concurrency.Name)
	if concurrency < 0 {
		return nil, fmt.Errorf("concurrency must not be negative, got %d", concurrency)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	return &Config{
		EventsFile:   eventsFile,
		ResultsDir:   resultsDir,
		SettingsFile: settingsFile,
		Concurrency:  concurrency,
		ShowFixtures: ctx.Bool(flags.ShowFixtures.Name),
		HealthzAddr:  ctx.String(flags.HealthzAddr.Name),
		Metrics:      metricsCfg,
		Log:          log,
	}, nil
}

func absPath(what, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s '%s': %w", what, path, err)
	}
	return abs, nil
}
