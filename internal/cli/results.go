package cli

import (
	"fmt"

	"github.com/gardenkit/garden/internal/executor"
	"github.com/gardenkit/garden/pkg/errs"
)

// summarize turns a []executor.TreeResult plus any fatal run error into
// the process-level outcome per spec.md §6: "0 success; non-zero
// reflects the first failing command's exit code when under
// exit-on-error, otherwise 1 if any tree failed."
func summarize(results []executor.TreeResult, runErr error, exitOnError bool) error {
	if exitOnError && runErr != nil {
		return runErr
	}
	for _, r := range results {
		if r.Err != nil {
			return errs.Build(errs.Execution("tree %q failed: %v", r.Tree, r.Err)).Err()
		}
	}
	return nil
}

func printSummary(results []executor.TreeResult) {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		fmt.Printf("%d of %d trees failed\n", failed, len(results))
	}
}
