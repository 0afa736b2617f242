package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/assembly/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("assembly", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
Assembly - a component runtime that builds instance trees from
declarative configuration.

Usage:
  assembly [options] [ROOT_REF]

Arguments:
  ROOT_REF
    Index of the root component, or a URL / .json path holding its
    definition.

Options:
`)
		flagSet.PrintDefaults()
	}

	rootFlag := flagSet.String("root", "", "Root component reference.")
	configFlag := flagSet.String("config", "", "Path to a JSON file with the root component's configuration.")
	modulesFlag := flagSet.String("modules", "", "Path to a directory of .hcl component manifests.")
	dataDirFlag := flagSet.String("data-dir", "", "Directory for embedded datastore files. Defaults to the system temp dir.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	root := *rootFlag
	if root == "" && flagSet.NArg() > 0 {
		root = flagSet.Arg(0)
	}
	if root == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		RootRef:     root,
		ConfigPath:  *configFlag,
		ModulesPath: *modulesFlag,
		DataDir:     *dataDirFlag,
		LogFormat:   logFormat,
		LogLevel:    logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}
