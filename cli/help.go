package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

// HelpExtrasFunc renders additional help sections after the flags.
type HelpExtrasFunc func(w io.Writer, t *Theme)

var (
	helpExtras   = make(map[*cobra.Command]HelpExtrasFunc)
	helpExtrasMu sync.RWMutex
)

const (
	maxHelpWidth = 72
	minHelpWidth = 40
)

// helpWidth returns the width help text wraps at for w.
func helpWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return maxHelpWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width < minHelpWidth {
		return maxHelpWidth
	}
	return min(width, maxHelpWidth)
}

// wrapText wraps each paragraph of text to width, keeping existing breaks.
func wrapText(text string, width int) []string {
	var out []string
	for _, paragraph := range strings.Split(text, "\n") {
		if len(paragraph) <= width {
			out = append(out, paragraph)
			continue
		}
		line := ""
		for _, word := range strings.Fields(paragraph) {
			switch {
			case line == "":
				line = word
			case len(line)+1+len(word) <= width:
				line += " " + word
			default:
				out = append(out, line)
				line = word
			}
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// ApplyStyledHelpRecursive installs the themed help on cmd and every
// subcommand. Call it after the tree is assembled. Usage output on errors
// is suppressed; the error handler prints a hint instead.
func ApplyStyledHelpRecursive(cmd *cobra.Command) {
	cmd.SetHelpFunc(styledHelpFunc)
	cmd.SetUsageFunc(func(*cobra.Command) error { return nil })
	for _, sub := range cmd.Commands() {
		ApplyStyledHelpRecursive(sub)
	}
}

// SetStyledHelpWithExtras registers extras to render in cmd's help.
func SetStyledHelpWithExtras(cmd *cobra.Command, extras HelpExtrasFunc) {
	helpExtrasMu.Lock()
	helpExtras[cmd] = extras
	helpExtrasMu.Unlock()
	cmd.SetHelpFunc(styledHelpFunc)
}

func styledHelpFunc(cmd *cobra.Command, _ []string) {
	renderHelp(cmd.OutOrStdout(), cmd, DefaultTheme)
}

func renderHelp(w io.Writer, cmd *cobra.Command, t *Theme) {
	width := helpWidth(w) - 2
	section := func(name string) {
		fmt.Fprintln(w, "\n "+t.Header.Render(name))
	}
	name := lipgloss.NewStyle().Bold(true).Foreground(t.Colors.Blue)
	flagStyle := lipgloss.NewStyle().Foreground(t.Colors.Violet)

	fmt.Fprintln(w, " "+t.Header.Render(strings.ToUpper(cmd.CommandPath())))
	for _, line := range wrapText(cmd.Short, width) {
		fmt.Fprintln(w, " "+t.Italic.Render(line))
	}

	description, examples := splitExamples(cmd.Long)
	if description = dropShort(description, cmd.Short); description != "" {
		fmt.Fprintln(w)
		for _, line := range wrapText(description, width) {
			fmt.Fprintln(w, " "+line)
		}
	}

	if cmd.Runnable() || cmd.HasSubCommands() {
		section("USAGE")
		if cmd.Runnable() {
			fmt.Fprintf(w, " %s\n", cmd.UseLine())
		}
		if cmd.HasAvailableSubCommands() {
			fmt.Fprintf(w, " %s [command]\n", cmd.CommandPath())
		}
	}

	if cmd.HasAvailableSubCommands() {
		section("COMMANDS")
		pad := 0
		for _, sub := range cmd.Commands() {
			if sub.IsAvailableCommand() {
				pad = max(pad, len(sub.Name()))
			}
		}
		for _, sub := range cmd.Commands() {
			if !sub.IsAvailableCommand() {
				continue
			}
			label := fmt.Sprintf("%-*s", pad, sub.Name())
			fmt.Fprintf(w, " %s  %s\n", name.Render(label), sub.Short)
		}
	}

	if flags := visibleFlags(cmd.LocalFlags()); len(flags) > 0 {
		section("FLAGS")
		renderFlags(w, t, flagStyle, flags)
	}
	if inherited := visibleFlags(cmd.InheritedFlags()); len(inherited) > 0 {
		names := make([]string, len(inherited))
		for i, f := range inherited {
			names[i] = "--" + f.Name
		}
		fmt.Fprintln(w, "\n "+t.Muted.Render("Global flags: "+strings.Join(names, ", ")))
	}

	if ex := firstNonEmpty(cmd.Example, examples); ex != "" {
		section("EXAMPLES")
		root := cmd.Root().Name()
		for _, line := range strings.Split(ex, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case line == "":
				fmt.Fprintln(w)
			case strings.HasPrefix(line, "#"):
				fmt.Fprintln(w, " "+t.Muted.Render(line))
			default:
				fmt.Fprintln(w, "   "+styleExample(line, root, name, flagStyle))
			}
		}
	}

	helpExtrasMu.RLock()
	extras := helpExtras[cmd]
	helpExtrasMu.RUnlock()
	if extras != nil {
		extras(w, t)
	}

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintf(w, "\n Use \"%s [command] --help\" for more information.\n", cmd.CommandPath())
	}
}

func renderFlags(w io.Writer, t *Theme, style lipgloss.Style, flags []*pflag.Flag) {
	pad := 0
	for _, f := range flags {
		pad = max(pad, len(flagLabel(f)))
	}
	indent := strings.Repeat(" ", pad+3)
	for _, f := range flags {
		usage, choices := parseChoices(f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "[]" && f.DefValue != "0" && f.DefValue != "0s" {
			usage += t.Muted.Render(fmt.Sprintf(" (default: %s)", f.DefValue))
		}
		fmt.Fprintf(w, " %s  %s\n", style.Render(fmt.Sprintf("%-*s", pad, flagLabel(f))), usage)
		for _, choice := range choices {
			fmt.Fprintf(w, " %s%s\n", indent, t.Muted.Render("• "+choice))
		}
	}
}

func visibleFlags(fs *pflag.FlagSet) []*pflag.Flag {
	var flags []*pflag.Flag
	fs.VisitAll(func(f *pflag.Flag) {
		if !f.Hidden {
			flags = append(flags, f)
		}
	})
	return flags
}

func flagLabel(f *pflag.Flag) string {
	if f.Shorthand != "" {
		return fmt.Sprintf("-%s, --%s", f.Shorthand, f.Name)
	}
	return "    --" + f.Name
}

// splitExamples separates an "Examples:" block from a long description.
func splitExamples(long string) (string, string) {
	for _, marker := range []string{"\nExamples:\n", "\nExample:\n"} {
		if i := strings.Index(long, marker); i != -1 {
			return long[:i], strings.TrimSpace(long[i+len(marker):])
		}
	}
	return long, ""
}

func styleExample(line, root string, cmdStyle, flagStyle lipgloss.Style) string {
	parts := strings.Fields(line)
	for i, p := range parts {
		switch {
		case i == 0 && p == root:
			parts[i] = cmdStyle.Render(p)
		case strings.HasPrefix(p, "-"):
			parts[i] = flagStyle.Render(p)
		}
	}
	return strings.Join(parts, " ")
}

// parseChoices splits usage of the form "Label: a, b or c" into the label
// and its choices. Usage without a choice list is returned unchanged.
func parseChoices(usage string) (string, []string) {
	label, list, ok := strings.Cut(usage, ": ")
	if !ok || strings.ContainsAny(list, "()") {
		return usage, nil
	}
	list = strings.ReplaceAll(list, " or ", ", ")
	parts := strings.Split(list, ", ")
	if len(parts) < 2 {
		return usage, nil
	}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || strings.Contains(p, " ") {
			return usage, nil
		}
		parts[i] = p
	}
	return label, parts
}

// dropShort removes a leading paragraph that only repeats short.
func dropShort(long, short string) string {
	long = strings.TrimSpace(long)
	first, rest, _ := strings.Cut(long, "\n\n")
	if strings.TrimSuffix(strings.TrimSpace(first), ".") == strings.TrimSuffix(short, ".") {
		return strings.TrimSpace(rest)
	}
	return long
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
