package cli

import (
	"github.com/spf13/cobra"

	"github.com/gardenkit/garden/pkg/errs"
)

var cmdCmd = &cobra.Command{
	Use:   "cmd <query> <command-name> [-- args...]",
	Short: "Run a declared `commands:` entry against every tree matched by query",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNamedCommand(cmd, args[0], args[1], args[2:])
	},
}

func init() {
	rootCmd.AddCommand(cmdCmd)
	// Bare shorthand: `garden <query> <command-name> [-- args...]` is
	// equivalent to `garden cmd <query> <command-name> [-- args...]`,
	// matching garden-rs's own implicit-command dispatch.
	rootCmd.Args = cobra.ArbitraryArgs
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) < 2 {
			return cmd.Help()
		}
		return runNamedCommand(cmd, args[0], args[1], args[2:])
	}
}

func runNamedCommand(cmd *cobra.Command, query, commandName string, trailingArgs []string) error {
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
	results, runErr := app.Executor().RunCommand(cmd.Context(), names, app.GardenFor(query), commandName, trailingArgs)
	printSummary(results)
	return summarize(results, runErr, app.Options.ExitOnError)
}
