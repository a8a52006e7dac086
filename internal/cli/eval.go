package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gardenkit/garden/internal/eval"
	"github.com/gardenkit/garden/internal/scope"
	"github.com/gardenkit/garden/pkg/errs"
	"github.com/gardenkit/garden/pkg/model"
)

var (
	evalTree   string
	evalGarden string
)

var evalCmd = &cobra.Command{
	Use:   "eval <expr>",
	Short: "Evaluate a `${...}`/`$ cmd` expression against a tree or garden scope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}

		cfg := app.Registry.Namespaces[""]
		var tree model.Tree
		var treeName string
		if evalTree != "" {
			qt, ok := app.Registry.Trees[model.Qualify("", evalTree)]
			if !ok {
				return errs.Resolution("no tree named %q", evalTree)
			}
			tree = qt.Tree
			treeName = qt.Tree.Name
			cfg = app.Registry.Namespaces[qt.Namespace]
		}

		var garden *model.Garden
		if evalGarden != "" {
			qg, ok := app.Registry.Gardens[model.Qualify("", evalGarden)]
			if !ok {
				return errs.Resolution("no garden named %q", evalGarden)
			}
			g := qg.Garden
			garden = &g
		}

		s := scope.Variables(cfg, tree, garden)
		builtins := eval.Builtins{ConfigDir: cfg.ConfigDir, Root: cfg.Root.Raw, TreeName: treeName, TreePath: tree.Path.Raw}
		evalCtx := eval.NewContext(s, builtins, cfg.Shell)

		result, err := evalCtx.Evaluate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(result)
		return nil
	},
}

func init() {
	evalCmd.Flags().StringVar(&evalTree, "tree", "", "evaluate in this tree's scope")
	evalCmd.Flags().StringVar(&evalGarden, "garden", "", "evaluate in this garden's scope")
	rootCmd.AddCommand(evalCmd)
}
