package rulescmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracks/cmd/tracks/cmdutil"
	"github.com/papercomputeco/tracks/pkg/cliui"
	"github.com/papercomputeco/tracks/pkg/config"
)

const listLongDesc string = `List rule groups in application order.

Stored groups come first, followed by the read-only default groups.

Examples:
  tracks rules list
  tracks rules list --json > rules.json`

const listShortDesc string = "List rule groups"

func newListCmd() *cobra.Command {
	var (
		asJSON        bool
		storageDriver string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the groups as a JSON rule file")
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &storageDriver)

	return cmd
}

func runList(cmd *cobra.Command, asJSON bool) error {
	a, err := cmdutil.OpenApp(cmd, cmdutil.Logger(cmd), config.FlagStorageDriver)
	if err != nil {
		return err
	}
	defer a.Close()

	groups, err := a.Service.ListRuleGroups(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return cmdutil.PrintJSON(out, groups)
	}

	fmt.Fprintln(out)
	for _, g := range groups {
		data, err := g.Current()
		if err != nil {
			fmt.Fprintf(out, "  %s %s %s\n", cliui.FailMark, cliui.KeyStyle.Render(g.GlobalID), cliui.DimStyle.Render(err.Error()))
			continue
		}

		mark := cliui.SuccessMark
		if !data.Enabled {
			mark = cliui.DimStyle.Render("-")
		}
		access := "editable"
		if !data.Editable {
			access = "read-only"
		}

		fmt.Fprintf(out, "  %s %s  %s %s\n",
			mark,
			cliui.KeyStyle.Render(g.GlobalID),
			cliui.ValueStyle.Render(data.Name),
			cliui.DimStyle.Render(fmt.Sprintf("(%d rules, %s)", len(data.Rules), access)),
		)
	}
	fmt.Fprintln(out)
	return nil
}
