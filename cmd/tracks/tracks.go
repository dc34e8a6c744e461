// Package trackscmder is the root tracks command.
package trackscmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/tracks/cmd/tracks/config"
	"github.com/papercomputeco/tracks/cmd/tracks/cmdutil"
	extractcmder "github.com/papercomputeco/tracks/cmd/tracks/extract"
	ingestcmder "github.com/papercomputeco/tracks/cmd/tracks/ingest"
	rulescmder "github.com/papercomputeco/tracks/cmd/tracks/rules"
	servecmder "github.com/papercomputeco/tracks/cmd/tracks/serve"
	tagscmder "github.com/papercomputeco/tracks/cmd/tracks/tags"
	versioncmder "github.com/papercomputeco/tracks/cmd/version"
	"github.com/papercomputeco/tracks/pkg/config"
)

const tracksLongDesc string = `Tracks derives tags from your recorded activity.

Raw window samples are ingested into a local event log. Tag rules and
fetchers turn their intrinsic tags into derived ones, which are
materialized per UTC day and served over a query API.

Common commands:
  tracks ingest samples.jsonl           Load raw events
  tracks extract --from 2024-03-01      Show derived tags for a range
  tracks tags EVENT_ID --reasons        Explain one event's tags
  tracks rules import my-rules.json     Import rule groups
  tracks serve                          Run the API and background extraction`

const tracksShortDesc string = "Tracks - activity tag derivation"

func NewTracksCmd() *cobra.Command {
	var sqlitePath string

	cmd := &cobra.Command{
		Use:           "tracks",
		Short:         tracksShortDesc,
		Long:          tracksLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP(cmdutil.FlagDebug, "d", false, "Enable debug logging")
	cmd.PersistentFlags().String(cmdutil.FlagConfigDir, "", "Override the .tracks/ config directory")
	config.AddPersistentStringFlag(cmd, config.Flags, config.FlagSQLite, &sqlitePath)

	// Add subcommands
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(extractcmder.NewExtractCmd())
	cmd.AddCommand(tagscmder.NewTagsCmd())
	cmd.AddCommand(rulescmder.NewRulesCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
