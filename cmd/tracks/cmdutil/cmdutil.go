// Package cmdutil holds the config and logging bootstrap shared by tracks
// commands.
package cmdutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracks/pkg/app"
	"github.com/papercomputeco/tracks/pkg/config"
	"github.com/papercomputeco/tracks/pkg/dotdir"
	"github.com/papercomputeco/tracks/pkg/logger"
)

// Persistent flag names registered on the root command.
const (
	FlagDebug     = "debug"
	FlagConfigDir = "config-dir"
)

// Logger builds the command logger. Output goes to stderr so stdout stays
// parseable.
func Logger(cmd *cobra.Command) *slog.Logger {
	debug, _ := cmd.Flags().GetBool(FlagDebug)
	return logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(true),
		logger.WithWriter(cmd.ErrOrStderr()),
	)
}

// ServiceLogger builds the logger for long-running commands. Console output
// goes to stderr, as JSON when jsonConsole is set. When logFile is not nil
// every record is also written to it as JSON.
func ServiceLogger(cmd *cobra.Command, jsonConsole bool, logFile io.Writer) *slog.Logger {
	debug, _ := cmd.Flags().GetBool(FlagDebug)
	console := logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(!jsonConsole),
		logger.WithJSON(jsonConsole),
		logger.WithWriter(cmd.ErrOrStderr()),
	)
	if logFile == nil {
		return console
	}
	file := logger.New(
		logger.WithDebug(debug),
		logger.WithJSON(true),
		logger.WithWriter(logFile),
	)
	return logger.Multi(console, file)
}

// OpenLogFile opens path for appending, creating it when missing. An empty
// path resolves to the service log in the tracks directory.
func OpenLogFile(cmd *cobra.Command, path string) (*os.File, error) {
	if path == "" {
		var err error
		path, err = dotdir.NewManager().Path(ConfigDir(cmd), dotdir.LogFile)
		if err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// ConfigDir returns the --config-dir override, if any.
func ConfigDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString(FlagConfigDir)
	return dir
}

// LoadConfig layers flags, env and config.toml. The global --sqlite flag is
// always bound in addition to the given registry keys.
func LoadConfig(cmd *cobra.Command, registryKeys ...string) (*config.Config, error) {
	v, err := config.InitViper(ConfigDir(cmd))
	if err != nil {
		return nil, err
	}

	keys := append([]string{config.FlagSQLite}, registryKeys...)
	config.BindRegisteredFlags(v, cmd, config.Flags, keys)

	return config.FromViper(v), nil
}

// OpenApp loads configuration and wires a tracks instance. Callers must
// Close the returned App.
func OpenApp(cmd *cobra.Command, log *slog.Logger, registryKeys ...string) (*app.App, error) {
	cfg, err := LoadConfig(cmd, registryKeys...)
	if err != nil {
		return nil, err
	}
	return NewApp(cmd, cfg, log)
}

// NewApp wires a tracks instance from an already loaded configuration.
func NewApp(cmd *cobra.Command, cfg *config.Config, log *slog.Logger) (*app.App, error) {
	return app.New(cmd.Context(), cfg, app.Options{
		ConfigDir: ConfigDir(cmd),
		Logger:    log,
	})
}
