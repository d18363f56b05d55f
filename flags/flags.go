package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_RECORDER"

var (
	// Events is checked by CheckRequired rather than marked Required, so the
	// summary command runs without it.
	Events = &cli.StringFlag{
		Name:    "events",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "EVENTS"),
		Usage:   "Path to the JSON-lines engine event log to record (eg. 'events.jsonl')",
	}
	ResultsDir = &cli.StringFlag{
		Name:    "results-dir",
		Value:   "allure-results",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RESULTS_DIR"),
		Usage:   "Directory to write result and container files to",
	}
	Settings = &cli.StringFlag{
		Name:    "settings",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SETTINGS"),
		Usage:   "Path to a yaml or toml settings file with digest, host, link patterns and label rules",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Maximum number of workers replayed at once (0 = one goroutine per worker)",
	}
	ShowFixtures = &cli.BoolFlag{
		Name:    "show-fixtures",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_FIXTURES"),
		Usage:   "Include setup and teardown fixtures in the summary table",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Address to serve /healthz on while recording (eg. '0.0.0.0:8080'), disabled when empty",
	}
)

var requiredFlags = []cli.Flag{
	Events,
}

var optionalFlags = []cli.Flag{
	ResultsDir,
	Settings,
	Concurrency,
	ShowFixtures,
	HealthzAddr,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

// SummaryFlags are the flags of the summary command
var SummaryFlags = []cli.Flag{
	ResultsDir,
	ShowFixtures,
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
