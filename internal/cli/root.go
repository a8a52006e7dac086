// Package cli implements Garden's command surface (spec.md §6's
// AMBIENT STACK — CLI section): a cobra command tree with the global
// flags CommandOptions in the original Rust implementation passed as
// process-wide state, bound here through internal/rt.Options instead.
package cli

import (
	"context"
	"os/exec"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gardenkit/garden/internal/rt"
)

var (
	flagConfig      string
	flagChdir       string
	flagRoot        string
	flagVerbose     bool
	flagQuiet       bool
	flagKeepGoing   bool
	flagExitOnError bool
	flagJobs        int
	flagColor       string
	flagDebug       []string
)

var (
	cancelMu sync.Mutex
	cancel   context.CancelFunc = func() {}
)

// rootCmd is the base `garden` command.
var rootCmd = &cobra.Command{
	Use:   "garden",
	Short: "Cultivate trees in the garden",
	Long:  "Garden orchestrates Git working trees through a single layered configuration document.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix("garden")
		viper.AutomaticEnv()
		return viper.BindPFlags(cmd.Flags())
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI, returning the outer error so main can compute
// an exit code via ExitCode.
func Execute() error {
	ctx, c := context.WithCancel(context.Background())
	cancelMu.Lock()
	cancel = c
	cancelMu.Unlock()
	defer c()
	return rootCmd.ExecuteContext(ctx)
}

// Cancel cooperatively cancels the in-flight invocation's context, used
// by main's signal handler.
func Cancel() {
	cancelMu.Lock()
	defer cancelMu.Unlock()
	cancel()
}

// ExitCode extracts a process exit code from err, following the
// teacher's GetExitCode precedence minus its attached-exit-code step: the
// code of an *exec.ExitError found anywhere in the chain, otherwise 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to the garden configuration file")
	rootCmd.PersistentFlags().StringVar(&flagChdir, "chdir", "", "change directory before loading configuration")
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "override garden.root")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&flagKeepGoing, "keep-going", false, "continue a tree's own command list past a failing command")
	rootCmd.PersistentFlags().BoolVar(&flagExitOnError, "exit-on-error", false, "abort the whole run at the first tree failure")
	rootCmd.PersistentFlags().IntVarP(&flagJobs, "jobs", "j", 0, "worker pool size (default: number of CPUs)")
	rootCmd.PersistentFlags().StringVar(&flagColor, "color", "auto", "colorize output: auto, on, off")
	rootCmd.PersistentFlags().StringArrayVar(&flagDebug, "debug", nil, "enable a debug topic (repeatable)")
}

// runtimeOptions reads each option back through viper rather than the raw
// flag variables: viper.BindPFlags (called in PersistentPreRunE) makes
// viper.Get* return the flag's value when the user set it explicitly and
// fall back to the bound env var (GARDEN_CONFIG, GARDEN_JOBS, ...) or the
// flag's default otherwise, the same BindPFlag-then-Get pattern
// tools/gotcha's root command uses for its github-token flag.
func runtimeOptions() rt.Options {
	return rt.Options{
		ConfigPath:   viper.GetString("config"),
		Chdir:        viper.GetString("chdir"),
		RootOverride: viper.GetString("root"),
		Verbose:      viper.GetBool("verbose"),
		Quiet:        viper.GetBool("quiet"),
		KeepGoing:    viper.GetBool("keep-going"),
		ExitOnError:  viper.GetBool("exit-on-error"),
		Jobs:         viper.GetInt("jobs"),
		Color:        viper.GetString("color"),
		DebugTopics:  viper.GetStringSlice("debug"),
	}
}

func loadApp() (*rt.App, error) {
	return rt.Load(runtimeOptions())
}
