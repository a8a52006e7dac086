package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gardenkit/garden/pkg/errs"
)

const starterConfig = `garden:
  root: "."
  shell: "bash"

variables:
  GARDEN_GREETING: "welcome to garden"

environment:
  PATH+: "${GARDEN_ROOT}/bin"

trees:
  example:
    path: "example"
    url: "https://github.com/example/example.git"
    commands:
      build: "echo building ${TREE_NAME}"
`

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a starter garden.yaml in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		const filename = "garden.yaml"
		if !initForce {
			if _, err := os.Stat(filename); err == nil {
				return errs.Configuration("%s already exists; use --force to overwrite", filename)
			}
		}
		if err := os.WriteFile(filename, []byte(starterConfig), 0o644); err != nil {
			return errs.Filesystem(err, "writing "+filename)
		}
		fmt.Printf("wrote %s\n", filename)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing garden.yaml")
	rootCmd.AddCommand(initCmd)
}
