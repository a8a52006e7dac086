package cli

import (
	"github.com/spf13/cobra"

	"github.com/gardenkit/garden/pkg/errs"
)

var execCmd = &cobra.Command{
	Use:   "exec <query> -- <argv...>",
	Short: "Run an ad hoc command against every tree matched by query",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := args[0]
		argv := args[1:]

		app, err := loadApp()
		if err != nil {
			return err
		}
		names, err := app.ResolveQuery(query)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return errs.Resolution("query %q matched no trees", query)
		}
		results, runErr := app.Executor().RunExec(cmd.Context(), names, app.GardenFor(query), argv)
		printSummary(results)
		return summarize(results, runErr, app.Options.ExitOnError)
	},
}

func init() {
	rootCmd.AddCommand(execCmd)
}
