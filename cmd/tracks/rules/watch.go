package rulescmder

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracks/cmd/tracks/cmdutil"
	"github.com/papercomputeco/tracks/pkg/config"
	"github.com/papercomputeco/tracks/pkg/rulewatch"
)

const watchLongDesc string = `Import a rule file and re-import it whenever it changes.

Runs until interrupted. Files that fail to parse are reported and the
previously imported groups stay in effect.

Examples:
  tracks rules watch my-rules.json`

const watchShortDesc string = "Re-import a rule file on change"

func newWatchCmd() *cobra.Command {
	var storageDriver string

	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: watchShortDesc,
		Long:  watchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, args[0])
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &storageDriver)

	return cmd
}

func runWatch(cmd *cobra.Command, path string) error {
	log := cmdutil.Logger(cmd)

	a, err := cmdutil.OpenApp(cmd, log, config.FlagStorageDriver)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := rulewatch.NewWatcher(path, a.Service, rulewatch.DefaultDebounce, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("watching rule file", "path", path)
	return w.Run(ctx)
}
