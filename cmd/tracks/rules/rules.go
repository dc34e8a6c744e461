// Package rulescmder provides the rules command for managing tag rule
// groups.
package rulescmder

import (
	"github.com/spf13/cobra"
)

const rulesLongDesc string = `Manage tag rule groups.

Rule groups are stored in the tracks database. The default groups compiled
into tracks are always applied after stored groups and cannot be changed.
Importing or changing a group invalidates every materialized day so the
next query re-derives with the new rules.

A rule file is a JSON array of groups:

  [{"global_id": "my-projects", "data": {"version": "V1", "data": {
     "name": "Projects", "enabled": true, "editable": true,
     "rules": [{"enabled": true, "rule": {"type": "HasTag", ...}}]}}}]

Use subcommands to list, import or watch rule groups:
  tracks rules list                 List stored and default groups
  tracks rules import <file>        Import groups from a file
  tracks rules watch <file>         Re-import a file whenever it changes`

const rulesShortDesc string = "Manage tag rule groups"

func NewRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: rulesShortDesc,
		Long:  rulesLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newWatchCmd())

	return cmd
}
