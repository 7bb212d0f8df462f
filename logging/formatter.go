package logging

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/conductor/config"
	"github.com/sirupsen/logrus"
)

var componentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)

// pinnedFields are written straight after the message, in this order, so
// a session's lines line up when grepping the daemon log.
var pinnedFields = []string{"session_id", "repository", "path"}

// TextFormatter renders entries as
// "<time> [LEVEL] [component] message pinned=... other=... error=...".
type TextFormatter struct {
	Config config.FormatConfig
}

// Format renders a single log entry.
func (f *TextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder

	if !f.Config.DisableTimestamp {
		b.WriteString(entry.Time.Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}

	level := entry.Level.String()
	if entry.Level == logrus.WarnLevel {
		level = "warn"
	}
	fmt.Fprintf(&b, "[%s]", strings.ToUpper(level))

	if component, ok := entry.Data["component"]; ok && !f.Config.DisableComponent {
		fmt.Fprintf(&b, " [%s]", componentStyle.Render(fmt.Sprint(component)))
	}

	if entry.HasCaller() {
		fmt.Fprintf(&b, " [%s:%d %s]", filepath.Base(entry.Caller.File), entry.Caller.Line, filepath.Base(entry.Caller.Function))
	}

	b.WriteByte(' ')
	b.WriteString(entry.Message)

	seen := map[string]bool{"component": true, logrus.ErrorKey: true}
	for _, key := range pinnedFields {
		if v, ok := entry.Data[key]; ok {
			writeField(&b, key, v)
			seen[key] = true
		}
	}

	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		if !seen[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		writeField(&b, key, entry.Data[key])
	}

	if err, ok := entry.Data[logrus.ErrorKey]; ok {
		writeField(&b, logrus.ErrorKey, err)
	}

	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func writeField(b *strings.Builder, key string, value interface{}) {
	s := fmt.Sprint(value)
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		s = strconv.Quote(s)
	}
	fmt.Fprintf(b, " %s=%s", key, s)
}
