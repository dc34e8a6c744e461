// Package ingestcmder provides the ingest command for loading raw events.
package ingestcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracks/cmd/tracks/cmdutil"
	"github.com/papercomputeco/tracks/pkg/cliui"
	"github.com/papercomputeco/tracks/pkg/config"
	"github.com/papercomputeco/tracks/pkg/ingest"
)

type ingestCommander struct {
	dryRun    bool
	batchSize int

	storageDriver string
	postgres      string
}

const ingestLongDesc string = `Load raw activity events into the event log.

Each argument is a JSONL file or a directory scanned recursively for
*.jsonl files. Every line is one record:

  {"id": "...", "timestamp": "2024-03-01T10:00:00Z", "duration_ms": 1000,
   "data_type": "x11_v2", "data": {"hostname": "...", "window": {...}}}

Events whose id is already stored are skipped. Records without an id get a
random one. Invalid lines are reported and skipped.`

const ingestShortDesc string = "Load raw events from JSONL files"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, args)
		},
	}

	cmd.Flags().BoolVar(&cmder.dryRun, "dry-run", false, "Validate records without storing them")
	cmd.Flags().IntVar(&cmder.batchSize, "batch-size", ingest.DefaultBatchSize, "Events inserted per storage call")
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgres)

	return cmd
}

func (c *ingestCommander) run(cmd *cobra.Command, paths []string) error {
	log := cmdutil.Logger(cmd)

	a, err := cmdutil.OpenApp(cmd, log, config.FlagStorageDriver, config.FlagPostgres)
	if err != nil {
		return err
	}
	defer a.Close()

	in := ingest.NewIngester(a.Driver, ingest.Options{
		DryRun:    c.dryRun,
		BatchSize: c.batchSize,
		Logger:    log,
	})

	var result *ingest.Result
	out := cmd.OutOrStdout()
	err = cliui.Step(out, fmt.Sprintf("Ingesting %d path(s)", len(paths)), func() error {
		var runErr error
		result, runErr = in.Run(cmd.Context(), paths)
		return runErr
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%s\n", result.Summary())
	for _, bad := range result.Rejected {
		fmt.Fprintf(out, "  %s %s\n", cliui.FailMark, cliui.DimStyle.Render(bad.Error()))
	}
	return nil
}
