package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gardenkit/garden/internal/eval"
	"github.com/gardenkit/garden/internal/scope"
)

var lsCmd = &cobra.Command{
	Use:   "ls <query>",
	Short: "List resolved tree names and paths without executing anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		names, err := app.ResolveQuery(args[0])
		if err != nil {
			return err
		}
		garden := app.GardenFor(args[0])
		for _, qname := range names {
			qt := app.Registry.Trees[qname]
			cfg := app.Registry.Namespaces[qt.Namespace]
			s := scope.Variables(cfg, qt.Tree, garden)
			builtins := eval.Builtins{ConfigDir: cfg.ConfigDir, Root: cfg.Root.Raw, TreeName: qt.Tree.Name}
			evalCtx := eval.NewContext(s, builtins, cfg.Shell)
			path, err := evalCtx.Evaluate(cmd.Context(), qt.Tree.Path.Raw)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\n", qname, path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
