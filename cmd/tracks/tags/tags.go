// Package tagscmder provides the tags command for explaining one event.
package tagscmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracks/api"
	"github.com/papercomputeco/tracks/cmd/tracks/cmdutil"
	"github.com/papercomputeco/tracks/pkg/cliui"
	"github.com/papercomputeco/tracks/pkg/config"
	"github.com/papercomputeco/tracks/pkg/engine"
	"github.com/papercomputeco/tracks/pkg/tags"
)

type tagsCommander struct {
	reasons bool
	json    bool
	offline bool

	storageDriver string
	postgres      string
}

const tagsLongDesc string = `Derive the tags of a single event with the current rules.

The event's intrinsic tags are run through every enabled rule group.
With --reasons each value is followed by the rule that produced it.

Examples:
  tracks tags 8f7c2a31-...
  tracks tags 8f7c2a31-... --reasons`

const tagsShortDesc string = "Derive the tags of one event"

func NewTagsCmd() *cobra.Command {
	cmder := &tagsCommander{}

	cmd := &cobra.Command{
		Use:   "tags <event-id>",
		Short: tagsShortDesc,
		Long:  tagsLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args[0])
		},
	}

	cmd.Flags().BoolVarP(&cmder.reasons, "reasons", "r", false, "Show where every value came from")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print JSON instead of text")
	cmd.Flags().BoolVar(&cmder.offline, "offline", false, "Only use cached fetch results")
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgres)

	return cmd
}

func (c *tagsCommander) run(cmd *cobra.Command, id string) error {
	log := cmdutil.Logger(cmd)
	cfg, err := cmdutil.LoadConfig(cmd, config.FlagStorageDriver, config.FlagPostgres)
	if err != nil {
		return err
	}
	if c.offline {
		cfg.Fetchers.NetworkEnabled = false
	}

	a, err := cmdutil.NewApp(cmd, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		t       *tags.Tags
		reasons engine.Reasons
	)
	if c.reasons {
		t, reasons, err = a.Service.GetTagsWithReasons(cmd.Context(), id)
	} else {
		t, err = a.Service.GetTags(cmd.Context(), id)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if c.json {
		return cmdutil.PrintJSON(out, api.TagsResponse{ID: id, Tags: t, Reasons: reasons})
	}

	fmt.Fprintf(out, "\n  %s %s\n\n", cliui.KeyStyle.Render("Event:"), cliui.ValueStyle.Render(id))
	cmdutil.PrintTags(out, "  ", t, reasons)
	fmt.Fprintln(out)
	return nil
}
