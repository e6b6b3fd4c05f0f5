// ABOUTME: Tests for logger construction and level selection.
// ABOUTME: Asserts on rendered output written to a buffer.
package logging

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want log.Level
	}{
		{"default", Options{}, log.InfoLevel},
		{"named", Options{Level: "WARN"}, log.WarnLevel},
		{"unknown falls back", Options{Level: "chatty"}, log.InfoLevel},
		{"verbose wins", Options{Level: "error", Verbose: true}, log.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(&bytes.Buffer{}, tt.opts)
			require.Equal(t, tt.want, l.GetLevel())
		})
	}
}

func TestNewWritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Options{})
	l.Info("imported", "file", "ACTIVITY_1.csv", "processed", 3)

	out := buf.String()
	require.Contains(t, out, "imported")
	require.Contains(t, out, "file=ACTIVITY_1.csv")
	require.Contains(t, out, "processed=3")
}

func TestOrDiscard(t *testing.T) {
	require.NotNil(t, OrDiscard(nil))
	l := New(&bytes.Buffer{}, Options{})
	require.Same(t, l, OrDiscard(l))
}
