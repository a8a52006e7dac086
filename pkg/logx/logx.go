// Package logx provides leveled, colorized diagnostic output in the
// style of the teacher's pkg/logger, adapted from Atmos's four-level
// scheme to the five levels spec.md's error taxonomy implies
// (trace/debug down to warn/error) plus an "off" sentinel.
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level is a logging threshold.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

// ParseLevel parses a level name, defaulting to LevelInfo for "".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "":
		return LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "off":
		return LevelOff, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level %q: supported levels are trace, debug, info, warn, error, off", s)
	}
}

// Logger writes leveled, colorized, optionally tree-prefixed lines. The
// zero value is not usable; construct with New.
type Logger struct {
	mu     sync.Mutex
	level  Level
	out    io.Writer
	errOut io.Writer
	colors map[Level]*color.Color
}

// New returns a Logger at LevelInfo writing to stdout/stderr.
func New() *Logger {
	return &Logger{
		level:  LevelInfo,
		out:    os.Stdout,
		errOut: os.Stderr,
		colors: map[Level]*color.Color{
			LevelTrace: color.New(color.FgHiBlack),
			LevelDebug: color.New(color.FgHiBlack),
			LevelInfo:  color.New(color.FgCyan),
			LevelWarn:  color.New(color.FgYellow),
			LevelError: color.New(color.FgRed),
		},
	}
}

// SetLevel updates the logging threshold.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput redirects output below LevelWarn (used by tests); warnings
// and errors still go to stderr.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

func (l *Logger) enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level && l.level != LevelOff
}

func (l *Logger) write(level Level, prefix, msg string) {
	if !l.enabled(level) {
		return
	}
	c := l.colors[level]
	line := msg
	if prefix != "" {
		line = prefix + ": " + msg
	}
	l.mu.Lock()
	w := l.out
	if level >= LevelWarn {
		w = l.errOut
	}
	l.mu.Unlock()
	if c != nil {
		_, _ = c.Fprintln(w, line)
	} else {
		fmt.Fprintln(w, line)
	}
}

func (l *Logger) Trace(msg string)             { l.write(LevelTrace, "", msg) }
func (l *Logger) Debug(msg string)             { l.write(LevelDebug, "", msg) }
func (l *Logger) Info(msg string)              { l.write(LevelInfo, "", msg) }
func (l *Logger) Warn(msg string)              { l.write(LevelWarn, "", msg) }
func (l *Logger) Error(err error) {
	if err != nil {
		l.write(LevelError, "", err.Error())
	}
}

// Tracef, Debugf, Infof, Warnf are fmt.Sprintf-formatted variants.
func (l *Logger) Tracef(format string, args ...any) { l.Trace(fmt.Sprintf(format, args...)) }
func (l *Logger) Debugf(format string, args ...any) { l.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...any)  { l.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.Warn(fmt.Sprintf(format, args...)) }

// TreeWriter returns an io.Writer that buffers partial lines and emits
// each complete line through Info, prefixed with the tree name — this
// is what the Executor wires a subprocess's stdout/stderr into so that
// concurrent worker output never interleaves mid-line (spec.md §5).
func (l *Logger) TreeWriter(treeName string) io.WriteCloser {
	return &linePrefixWriter{logger: l, prefix: treeName}
}

type linePrefixWriter struct {
	logger *Logger
	prefix string
	buf    []byte
}

func (w *linePrefixWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		idx := strings.IndexByte(string(w.buf), '\n')
		if idx < 0 {
			break
		}
		w.logger.write(LevelInfo, w.prefix, string(w.buf[:idx]))
		w.buf = w.buf[idx+1:]
	}
	return len(p), nil
}

func (w *linePrefixWriter) Close() error {
	if len(w.buf) > 0 {
		w.logger.write(LevelInfo, w.prefix, string(w.buf))
		w.buf = nil
	}
	return nil
}

var (
	defaultMu     sync.Mutex
	defaultLogger = New()
)

// Default returns the package-level default Logger.
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultLogger
}

// SetDefault replaces the package-level default Logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}
