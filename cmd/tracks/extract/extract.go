// Package extractcmder provides the extract command for listing derived tags
// over a time range.
package extractcmder

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracks/api"
	"github.com/papercomputeco/tracks/cmd/tracks/cmdutil"
	"github.com/papercomputeco/tracks/pkg/cliui"
	"github.com/papercomputeco/tracks/pkg/config"
	"github.com/papercomputeco/tracks/pkg/extract"
)

type extractCommander struct {
	from    string
	to      string
	tags    []string
	json    bool
	offline bool

	storageDriver string
	postgres      string
	chunkSize     uint
}

const extractLongDesc string = `Show derived tags for every event in a time range.

Days whose materialized tags are missing or stale are re-derived first, so
the first run over a range can take a while when external fetchers are
involved. Later runs read the cached rows.

Bounds accept RFC 3339 timestamps or bare UTC days. A bare --to day covers
the whole day. --to defaults to --from, and --from defaults to today.

Examples:
  tracks extract --from 2024-03-01
  tracks extract --from 2024-03-01 --to 2024-03-07 --tag browse-main-domain
  tracks extract --from 2024-03-01T09:00:00Z --to 2024-03-01T17:00:00Z --json`

const extractShortDesc string = "Show derived tags for a time range"

func NewExtractCmd() *cobra.Command {
	cmder := &extractCommander{}

	cmd := &cobra.Command{
		Use:   "extract",
		Short: extractShortDesc,
		Long:  extractLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVar(&cmder.from, "from", "", "Start of the range (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&cmder.to, "to", "", "End of the range (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringSliceVarP(&cmder.tags, "tag", "t", nil, "Only return these tags (repeatable)")
	cmd.Flags().BoolVar(&cmder.json, "json", false, "Print JSON instead of text")
	cmd.Flags().BoolVar(&cmder.offline, "offline", false, "Only use cached fetch results")
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgres)
	config.AddUintFlag(cmd, config.Flags, config.FlagChunkSize, &cmder.chunkSize)

	return cmd
}

// Range resolves the --from and --to arguments relative to now.
func Range(fromArg, toArg string, now time.Time) (time.Time, time.Time, error) {
	if fromArg == "" {
		fromArg = now.UTC().Format("2006-01-02")
	}
	if toArg == "" {
		toArg = fromArg
	}

	from, err := extract.ParseInstant(fromArg, false)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from %q", fromArg)
	}
	to, err := extract.ParseInstant(toArg, true)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --to %q", toArg)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("--to is before --from")
	}
	return from, to, nil
}

func (c *extractCommander) run(cmd *cobra.Command) error {
	from, to, err := Range(c.from, c.to, time.Now())
	if err != nil {
		return err
	}

	log := cmdutil.Logger(cmd)
	cfg, err := cmdutil.LoadConfig(cmd, config.FlagStorageDriver, config.FlagPostgres, config.FlagChunkSize)
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

	filter := extract.Filter{Tags: c.tags}
	var evs []*extract.ExtractedEvent
	run := func() error {
		var runErr error
		evs, runErr = a.Service.GetExtractedForTimeRange(cmd.Context(), from, to, filter)
		return runErr
	}

	out := cmd.OutOrStdout()
	if c.json {
		if err := run(); err != nil {
			return err
		}
		resp := api.ExtractedResponse{From: from, To: to, Events: make([]api.ExtractedEvent, len(evs))}
		for i, e := range evs {
			resp.Events[i] = api.ExtractedEvent{ID: e.ID, Timestamp: e.Timestamp, DurationMS: e.Duration.Milliseconds(), Tags: e.Tags}
		}
		return cmdutil.PrintJSON(out, resp)
	}

	msg := fmt.Sprintf("Extracting %s to %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	if err := cliui.Step(out, msg, run); err != nil {
		return err
	}

	fmt.Fprintln(out)
	for _, e := range evs {
		fmt.Fprintf(out, "  %s  %s  %s\n",
			e.Timestamp.Format(time.RFC3339),
			cliui.StepStyle.Render(e.Duration.String()),
			cliui.DimStyle.Render(e.ID),
		)
		cmdutil.PrintTags(out, "      ", e.Tags, nil)
	}
	fmt.Fprintf(out, "\n  %d events\n", len(evs))
	return nil
}
