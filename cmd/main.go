package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	recorder "github.com/ethereum-optimism/infra/op-recorder"
	"github.com/ethereum-optimism/infra/op-recorder/exitcodes"
	"github.com/ethereum-optimism/infra/op-recorder/flags"
	"github.com/ethereum-optimism/infra/op-recorder/reporting"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp(os.Stdout)

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-recorder"
	app.Usage = "Test execution recorder"
	app.Description = "op-recorder replays engine event logs into result and container files"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.Writer = out
	app.Commands = []*cli.Command{
		{
			Name:   "summary",
			Usage:  "Print the result hierarchy of an existing results directory",
			Flags:  cliapp.ProtectFlags(append(flags.SummaryFlags, oplog.CLIFlags(flags.EnvVarPrefix)...)),
			Action: summary,
		},
	}
	app.ExitErrHandler = exitErrHandler
	return app
}

func exitErrHandler(c *cli.Context, err error) {
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		cli.HandleExitCoder(exitErr)
	} else if err != nil {
		if recorder.IsRuntimeError(err) {
			cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
		} else {
			// Failed cases and anything unclassified
			cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
		}
	}
}

func setupLogger(ctx *cli.Context) log.Logger {
	logCfg := oplog.ReadCLIConfig(ctx)
	logger := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(logger.Handler())
	oplog.SetupDefaults()
	return logger
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logger := setupLogger(ctx)

	cfg, err := recorder.NewConfig(ctx, logger)
	if err != nil {
		return nil, recorder.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Log.Debug("Config", "config", cfg)

	r, err := recorder.New(ctx.Context, cfg, Version, closeApp)
	if err != nil {
		return nil, recorder.NewRuntimeError(fmt.Errorf("failed to create recorder: %w", err))
	}
	return r, nil
}

// summary renders a results directory written by an earlier run
func summary(ctx *cli.Context) error {
	logger := setupLogger(ctx)
	dir := ctx.String(flags.ResultsDir.Name)

	loaded, err := reporting.LoadDir(dir)
	if err != nil {
		return recorder.NewRuntimeError(err)
	}
	logger.Debug("Loaded results", "dir", dir, "containers", len(loaded.Containers), "cases", len(loaded.Cases))

	tree := reporting.BuildTree(loaded.Containers, loaded.Cases)
	out, err := reporting.NewTreeFormatter(fmt.Sprintf("Results (%s)", dir), ctx.Bool(flags.ShowFixtures.Name)).Format(tree)
	if err != nil {
		return recorder.NewRuntimeError(fmt.Errorf("failed to format summary: %w", err))
	}
	fmt.Fprintln(ctx.App.Writer, out)

	if tree.Stats.HasFailures() {
		return recorder.NewTestFailureError(fmt.Sprintf("%d failed, %d broken", tree.Stats.Failed, tree.Stats.Broken))
	}
	return nil
}
