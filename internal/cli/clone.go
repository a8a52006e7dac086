package cli

import (
	"github.com/spf13/cobra"

	"github.com/gardenkit/garden/pkg/errs"
)

var cloneCmd = &cobra.Command{
	Use:     "clone <query>",
	Aliases: []string{"plant"},
	Short:   "Clone every tree matched by query",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		names, err := app.ResolveQuery(args[0])
		if err != nil {
			return err
		}
		if len(names) == 0 {
			return errs.Resolution("query %q matched no trees", args[0])
		}
		results, runErr := app.Executor().Clone(cmd.Context(), names, app.GardenFor(args[0]))
		printSummary(results)
		return summarize(results, runErr, app.Options.ExitOnError)
	},
}

func init() {
	rootCmd.AddCommand(cloneCmd)
}
