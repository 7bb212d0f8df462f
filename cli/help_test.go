package cli

import (
	"bytes"
	"io"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func TestParseChoices(t *testing.T) {
	tests := []struct {
		usage   string
		label   string
		choices []string
	}{
		{"Result ordering: name or recency", "Result ordering", []string{"name", "recency"}},
		{"Output colours: kanagawa, terminal or none", "Output colours", []string{"kanagawa", "terminal", "none"}},
		{"Session ID (generated when empty)", "Session ID (generated when empty)", nil},
		{"Maximum number of names (0 for all)", "Maximum number of names (0 for all)", nil},
		{"Note: this is a sentence, not a list", "Note: this is a sentence, not a list", nil},
	}
	for _, tt := range tests {
		t.Run(tt.usage, func(t *testing.T) {
			label, choices := parseChoices(tt.usage)
			assert.Equal(t, tt.label, label)
			assert.Equal(t, tt.choices, choices)
		})
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("one two three four five\nshort", 10)
	assert.Equal(t, []string{"one two", "three four", "five", "short"}, lines)
}

func TestRenderHelp(t *testing.T) {
	root := NewStandardCommand("conductor", "Manage sessions")
	scan := &cobra.Command{
		Use:   "scan [root]",
		Short: "Discover repositories",
		Long: `Discover repositories

Walks the root directory.

Examples:
  # everything below ~/src
  conductor scan ~/src --order recency`,
		RunE: func(*cobra.Command, []string) error { return nil },
	}
	scan.Flags().String("order", "", "Result ordering: name or recency")
	root.AddCommand(scan)
	ApplyStyledHelpRecursive(root)

	var extrasCalled bool
	SetStyledHelpWithExtras(root, func(w io.Writer, t *Theme) {
		extrasCalled = true
		_, _ = io.WriteString(w, "EXTRA\n")
	})

	var buf bytes.Buffer
	renderHelp(&buf, scan, NewTheme("terminal"))
	out := buf.String()
	assert.Contains(t, out, "CONDUCTOR SCAN")
	assert.Contains(t, out, "Walks the root directory.")
	assert.Contains(t, out, "--order")
	assert.Contains(t, out, "• recency")
	assert.Contains(t, out, "# everything below ~/src")
	assert.Contains(t, out, "Global flags:")
	assert.NotContains(t, out, "EXTRA")

	buf.Reset()
	renderHelp(&buf, root, NewTheme("terminal"))
	out = buf.String()
	assert.Contains(t, out, "COMMANDS")
	assert.Contains(t, out, "Discover repositories")
	assert.Contains(t, out, "EXTRA")
	assert.True(t, extrasCalled)
}

func TestDropShort(t *testing.T) {
	assert.Equal(t, "Details.", dropShort("Run the daemon.\n\nDetails.", "Run the daemon"))
	assert.Equal(t, "", dropShort("Run the daemon", "Run the daemon"))
	assert.Equal(t, "Something else.\n\nMore.", dropShort("Something else.\n\nMore.", "Run the daemon"))
}
