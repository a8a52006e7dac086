package errs

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestConfigurationIsInTaxonomy(t *testing.T) {
	err := Configuration("missing key %q", "root")
	assert.True(t, Is(err, ErrConfiguration))
	assert.False(t, Is(err, ErrExecution))
	assert.Contains(t, err.Error(), "root")
}

func TestConfigurationWrapPreservesSentinel(t *testing.T) {
	cause := fmt.Errorf("file not found")
	err := ConfigurationWrap(cause, "loading garden.yaml")
	assert.True(t, Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "loading garden.yaml")
}

func TestExecutionWrapKeepsUnderlyingErrorReachable(t *testing.T) {
	cause := fmt.Errorf("exit status 1")
	err := ExecutionWrap(cause, "command failed")
	assert.True(t, Is(err, ErrExecution))
	assert.ErrorContains(t, err, "exit status 1")
	assert.True(t, Is(err, cause))
}

func TestBuilderAccumulatesHints(t *testing.T) {
	err := Build(Resolution("no such tree")).
		WithHint("check your query syntax").
		WithHintf("did you mean %q?", "core").
		Err()
	assert.True(t, Is(err, ErrResolution))
	assert.ElementsMatch(t, []string{"check your query syntax", `did you mean "core"?`}, errors.GetAllHints(err))
}

func TestEachTaxonomyRootIsDistinct(t *testing.T) {
	roots := []error{ErrConfiguration, ErrResolution, ErrEvaluation, ErrExecution, ErrFilesystem}
	for i, a := range roots {
		for j, b := range roots {
			if i == j {
				continue
			}
			assert.False(t, Is(a, b), "%v should not satisfy Is(%v)", a, b)
		}
	}
}
