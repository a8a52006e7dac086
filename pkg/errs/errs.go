// Package errs implements the error taxonomy from spec.md §7 as
// sentinel errors plus a small fluent builder, grounded on the
// teacher's errors.ErrorBuilder but built directly on
// github.com/cockroachdb/errors rather than a hand-rolled wrapper.
package errs

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel taxonomy roots. Callers branch on taxonomy with errors.Is.
var (
	// ErrConfiguration covers file-not-found, parse failure, shape
	// mismatch, unknown required key, cyclic extend/graft, missing
	// template, duplicate canonical name across grafts. Fatal at load.
	ErrConfiguration = errors.New("configuration error")
	// ErrResolution covers query names that match nothing, or a missing
	// referenced tree/group/garden. Fatal for the invocation.
	ErrResolution = errors.New("resolution error")
	// ErrEvaluation covers cyclic variable references and an
	// unavailable shell for an exec expression. Reported per-expression;
	// the run continues unless strict mode is set.
	ErrEvaluation = errors.New("evaluation error")
	// ErrExecution covers a subprocess exiting non-zero.
	ErrExecution = errors.New("execution error")
	// ErrFilesystem covers a failed symlink or directory creation.
	ErrFilesystem = errors.New("filesystem error")
)

// Builder is a fluent wrapper that attaches hints, detail, and
// structured context to an error before it is surfaced to the user.
type Builder struct {
	err   error
	hints []string
}

// Build starts a Builder from a base error.
func Build(err error) *Builder {
	return &Builder{err: err}
}

// WithHint attaches a user-facing hint. Multiple hints accumulate.
func (b *Builder) WithHint(hint string) *Builder {
	b.hints = append(b.hints, hint)
	return b
}

// WithHintf is WithHint with fmt.Sprintf formatting.
func (b *Builder) WithHintf(format string, args ...any) *Builder {
	return b.WithHint(fmt.Sprintf(format, args...))
}

// WithDetail attaches additional explanatory detail to the error,
// visible via errors.GetAllDetails but not in Error().
func (b *Builder) WithDetail(detail string) *Builder {
	b.err = errors.WithDetail(b.err, detail)
	return b
}

// WithSentinel marks the error so that errors.Is(err, sentinel) is true
// even though the returned error also carries a formatted message.
func (b *Builder) WithSentinel(sentinel error) *Builder {
	b.err = errors.Mark(b.err, sentinel)
	return b
}

// Err returns the fully constructed error.
func (b *Builder) Err() error {
	err := b.err
	for _, h := range b.hints {
		err = errors.WithHint(err, h)
	}
	return err
}

// Configuration returns a new ErrConfiguration error with the formatted message.
func Configuration(msg string, args ...any) error {
	return Build(errors.Newf(msg, args...)).WithSentinel(ErrConfiguration).Err()
}

// ConfigurationWrap wraps an existing error as an ErrConfiguration.
func ConfigurationWrap(err error, msg string) error {
	return Build(errors.Wrap(err, msg)).WithSentinel(ErrConfiguration).Err()
}

// Resolution returns a new ErrResolution error with the formatted message.
func Resolution(msg string, args ...any) error {
	return Build(errors.Newf(msg, args...)).WithSentinel(ErrResolution).Err()
}

// Evaluation returns a new ErrEvaluation error with the formatted message.
func Evaluation(msg string, args ...any) error {
	return Build(errors.Newf(msg, args...)).WithSentinel(ErrEvaluation).Err()
}

// Execution returns a new ErrExecution error with the formatted message.
func Execution(msg string, args ...any) error {
	return Build(errors.Newf(msg, args...)).WithSentinel(ErrExecution).Err()
}

// ExecutionWrap wraps an existing error (e.g. an *exec.ExitError, kept
// unwrappable so callers can recover the exit code) as an ErrExecution.
func ExecutionWrap(err error, msg string) error {
	return Build(errors.Wrap(err, msg)).WithSentinel(ErrExecution).Err()
}

// Filesystem wraps err as an ErrFilesystem with the given message.
func Filesystem(err error, msg string) error {
	return Build(errors.Wrap(err, msg)).WithSentinel(ErrFilesystem).Err()
}

// Is reports whether err is in the given sentinel's taxonomy.
func Is(err, sentinel error) bool {
	return errors.Is(err, sentinel)
}
