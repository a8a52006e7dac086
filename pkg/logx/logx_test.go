package logx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevelKnownNames(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, LevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LevelInfo, lvl)
}

func TestParseLevelRejectsUnknownName(t *testing.T) {
	_, err := ParseLevel("bogus")
	assert.Error(t, err)
}

func TestLoggerSuppressesBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	l.SetLevel(LevelWarn)

	l.Info("should not appear")
	assert.Empty(t, buf.String())
}

func TestLoggerEmitsAtOrAboveThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	l.SetLevel(LevelInfo)

	l.Infof("hello %s", "world")
	assert.Contains(t, buf.String(), "hello world")
}

func TestLevelOffSuppressesEverything(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	l.SetLevel(LevelOff)

	l.Info("anything")
	assert.Empty(t, buf.String())
}

func TestTreeWriterPrefixesCompleteLinesOnly(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)

	w := l.TreeWriter("core")
	_, err := w.Write([]byte("partial"))
	require.NoError(t, err)
	assert.Empty(t, buf.String(), "a partial line without a newline is buffered, not flushed")

	_, err = w.Write([]byte(" line\nsecond\n"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "core: partial line")
	assert.Contains(t, buf.String(), "core: second")
}

func TestTreeWriterCloseFlushesTrailingPartialLine(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)

	w := l.TreeWriter("core")
	_, _ = w.Write([]byte("no newline at eof"))
	require.NoError(t, w.Close())
	assert.Contains(t, buf.String(), "core: no newline at eof")
}
