// Command openresponses serves an OpenAI-compatible Responses API backed by
// configurable chat-completion providers, hybrid retrieval, and pluggable
// persistence.
//
// Usage:
//
//	openresponses serve --config config.yaml
//	openresponses validate --config config.yaml
//	openresponses schema > config.schema.json
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/openresponses/openresponses"
	"github.com/openresponses/openresponses/pkg/config"
	"github.com/openresponses/openresponses/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the response server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration source."`
	Schema   SchemaCmd   `cmd:"" help:"Generate the JSON Schema for the configuration."`

	Config    string `short:"c" help:"Config source: a file path, \"-\" for stdin, or a consul://, etcd://, zk:// URL."`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, json, text)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(openresponses.GetVersion().String())
	return nil
}

// initLogging configures the process logger from the CLI flags. Config file
// logging settings apply later, in serve, unless a flag overrode them.
func initLogging(cli *CLI) (func(), error) {
	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		return nil, err
	}

	output := os.Stderr
	var cleanup func()
	if cli.LogFile != "" {
		file, closeFile, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		output, cleanup = file, closeFile
	}

	logger.Init(level, output, cli.LogFormat)
	return cleanup, nil
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("openresponses"),
		kong.Description("OpenAI-compatible response server with agentic retrieval"),
		kong.UsageOnError(),
	)

	cleanup, err := initLogging(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
