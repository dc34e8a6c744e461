package rulescmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracks/cmd/tracks/cmdutil"
	"github.com/papercomputeco/tracks/pkg/cliui"
	"github.com/papercomputeco/tracks/pkg/config"
	"github.com/papercomputeco/tracks/pkg/rulewatch"
)

const importLongDesc string = `Import rule groups from a JSON file.

Groups are stored by global id, replacing existing groups with the same id.
Default group ids are rejected. Either every group in the file is stored or
none is.

Examples:
  tracks rules import my-rules.json`

const importShortDesc string = "Import rule groups from a file"

func newImportCmd() *cobra.Command {
	var storageDriver string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: importShortDesc,
		Long:  importLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0])
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &storageDriver)

	return cmd
}

func runImport(cmd *cobra.Command, path string) error {
	groups, err := rulewatch.LoadFile(path)
	if err != nil {
		return err
	}

	a, err := cmdutil.OpenApp(cmd, cmdutil.Logger(cmd), config.FlagStorageDriver)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Service.ImportRuleGroups(cmd.Context(), groups); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n  %s Imported %s from %s\n\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(fmt.Sprintf("%d group(s)", len(groups))),
		cliui.DimStyle.Render(path),
	)
	return nil
}
