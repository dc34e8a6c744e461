// Package configcmder provides the config command for managing persistent
// tracks configuration stored in the .tracks/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent tracks configuration.

Configuration is stored as config.toml in the .tracks/ directory and provides
default values for command flags. CLI flags and TRACKS_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  fetch_cache.provider, fetch_cache.redis_address, fetch_cache.redis_prefix,
  fetchers.network_enabled, fetchers.timeout,
  extract.chunk_size, extract.background_interval, extract.background_days,
  api.listen, eventstream.provider, eventstream.kafka_brokers,
  rules.watch_file

Use subcommands to get, set, or list configuration values:
  tracks config set <key> <value>    Set a configuration value
  tracks config get <key>            Get a configuration value
  tracks config list                 List all configuration values

Examples:
  tracks config set storage.driver postgres
  tracks config set fetchers.network_enabled false
  tracks config get api.listen
  tracks config list`

const configShortDesc string = "Manage persistent tracks configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
