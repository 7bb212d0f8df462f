package cli

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/grovetools/conductor/errors"
)

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		verbose bool
		want    []string
		notWant []string
	}{
		{
			name: "plain error",
			err:  stderrors.New("boom"),
			want: []string{"Error:", "boom"},
		},
		{
			name:    "structured message without cause chain",
			err:     errors.Wrap(stderrors.New("disk full"), errors.ErrCodePersistFailed, "failed to persist sessions"),
			want:    []string{"failed to persist sessions", "check permissions"},
			notWant: []string{"disk full"},
		},
		{
			name: "transition hint lists targets",
			err:  errors.InvalidTransition("s-1", "READY", "COMPLETED"),
			want: []string{"From READY a session may move to", "RUNNING"},
		},
		{
			name: "terminal state",
			err:  errors.InvalidTransition("s-1", "COMPLETED", "RUNNING"),
			want: []string{"COMPLETED is terminal"},
		},
		{
			name: "daemon already running",
			err:  errors.New(errors.ErrCodeAlreadyExists, "daemon already running with PID 42").WithDetail("pidFile", "/run/conductor.pid"),
			want: []string{"conductor daemon stop"},
		},
		{
			name:    "verbose prints details",
			err:     errors.InvalidInput("bad order").WithDetail("order", "size"),
			verbose: true,
			want:    []string{"Error details:", `"order": "size"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &ErrorHandler{Verbose: tt.verbose, Out: &buf}

			assert.Same(t, tt.err, h.Handle(tt.err))
			out := buf.String()
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, out, nw)
			}
		})
	}

	assert.NoError(t, NewErrorHandler(false).Handle(nil))
}
