package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync/atomic"

	"github.com/ethereum-optimism/infra/op-recorder/exitcodes"
	"github.com/ethereum-optimism/infra/op-recorder/lifecycle"
	"github.com/ethereum-optimism/infra/op-recorder/listener"
	"github.com/ethereum-optimism/infra/op-recorder/replay"
	"github.com/ethereum-optimism/infra/op-recorder/reporting"
	"github.com/ethereum-optimism/infra/op-recorder/service"
	"github.com/ethereum-optimism/infra/op-recorder/settings"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// recorder implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &recorder{}

// recorder replays one engine event log through the listener, writes the results
// and prints a summary of the rebuilt hierarchy.
type recorder struct {
	config   *Config
	version  string
	settings *settings.Settings

	lifecycle *lifecycle.Lifecycle
	memory    *lifecycle.MemoryResultsWriter
	listener  *listener.Listener
	player    *replay.Player
	service   *service.Service

	out  io.Writer
	tree *reporting.Tree

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, shutdownCallback func(error)) (*recorder, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating recorder with config",
		"events", config.EventsFile,
		"resultsDir", config.ResultsDir,
		"settings", config.SettingsFile,
		"concurrency", config.Concurrency)

	s, err := settings.Load(config.SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	ids, err := s.Assigner()
	if err != nil {
		return nil, fmt.Errorf("failed to create identity assigner: %w", err)
	}

	files, err := lifecycle.NewFileSystemResultsWriter(config.ResultsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create results writer: %w", err)
	}
	memory := lifecycle.NewMemoryResultsWriter()
	lc := lifecycle.New(lifecycle.MultiWriter{files, memory}, config.Log)

	l, err := listener.New(listener.Config{
		Lifecycle:    lc,
		Log:          config.Log,
		Assigner:     ids,
		LabelRules:   s.LabelRules(),
		LinkPatterns: s.Links,
		Host:         s.Host,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	var opts []replay.Option
	if config.Concurrency > 0 {
		opts = append(opts, replay.WithMaxWorkers(config.Concurrency))
	}
	player := replay.NewPlayer(l, config.Log, opts...)

	svcCfg := service.Config{HealthzAddr: config.HealthzAddr, Log: config.Log}
	if config.Metrics.Enabled {
		svcCfg.MetricsAddr = net.JoinHostPort(config.Metrics.ListenAddr, strconv.Itoa(config.Metrics.ListenPort))
	}
	config.Log.Info("recorder.New: created listener and player", "digest", ids.Digest())

	return &recorder{
		config:           config,
		version:          version,
		settings:         s,
		lifecycle:        lc,
		memory:           memory,
		listener:         l,
		player:           player,
		service:          service.New(svcCfg),
		out:              os.Stdout,
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start records the event log once and returns.
// Start implements the cliapp.Lifecycle interface.
func (r *recorder) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if p := recover(); p != nil {
			r.config.Log.Error("Runtime error occurred", "error", p)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	r.running.Store(true)
	r.service.Start(ctx)
	r.config.Log.Info("Starting op-recorder", "version", r.version, "events", r.config.EventsFile)

	if err := r.record(ctx); err != nil {
		r.config.Log.Error("Runtime error recording events", "error", err)
		return err
	}

	if r.tree.Stats.HasFailures() {
		r.config.Log.Warn("Recorded run contains failures, returning exit code 1")
		return NewTestFailureError(summaryLine(r.tree.Stats))
	}

	go func() {
		r.shutdownCallback(nil)
	}()
	return nil
}

// record replays the event log and prints the summary table
func (r *recorder) record(ctx context.Context) error {
	f, err := os.Open(r.config.EventsFile)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to open events file: %w", err))
	}
	defer f.Close()

	events, err := replay.Decode(f)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to decode events: %w", err))
	}

	summary, err := r.player.Play(ctx, events)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, replay.ErrInvalidLog) {
			return NewRuntimeError(err)
		}
		// a fixture exit without its enter means the hierarchy can no longer be trusted
		if listener.IsPairingError(err) {
			return NewRuntimeError(fmt.Errorf("corrupt fixture pairing: %w", err))
		}
		r.config.Log.Warn("Some events could not be recorded", "errors", summary.Errors, "err", err)
	}

	containers, cases := r.lifecycle.Pending()
	if len(containers) > 0 || len(cases) > 0 {
		r.config.Log.Warn("Event log left entries open", "containers", len(containers), "cases", len(cases))
	}

	r.tree = reporting.BuildTree(r.memory.Containers(), r.memory.Results())
	formatter := reporting.NewTreeFormatter(fmt.Sprintf("Recorded Results (%s)", r.config.ResultsDir), r.config.ShowFixtures)
	table, err := formatter.Format(r.tree)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to format summary: %w", err))
	}
	fmt.Fprintln(r.out, table)
	fmt.Fprintln(r.out, summaryLine(r.tree.Stats))

	r.config.Log.Info("Recording completed",
		"events", summary.Events,
		"workers", summary.Workers,
		"cases", r.tree.Stats.Total,
		"status", r.tree.Stats.Status)
	return nil
}

// Stop stops the op-recorder service.
// Stop implements the cliapp.Lifecycle interface.
func (r *recorder) Stop(ctx context.Context) error {
	r.config.Log.Info("Stopping op-recorder")
	if !r.running.Load() {
		r.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	r.running.Store(false)
	r.service.Shutdown()
	r.config.Log.Info("op-recorder stopped successfully")
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (r *recorder) Stopped() bool {
	return !r.running.Load()
}

func summaryLine(s reporting.Stats) string {
	return fmt.Sprintf("%d cases: %d passed, %d failed, %d broken, %d skipped (%.1f%% pass rate)",
		s.Total, s.Passed, s.Failed, s.Broken, s.Skipped, s.PassRate)
}
