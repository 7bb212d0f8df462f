package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/pkg/sessions"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to stderr
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     os.Stderr,
	}
}

// Handle prints err with a hint chosen by its error code and returns it.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	t := DefaultTheme
	fmt.Fprintf(h.Out, "%s %v\n", t.Error.Render("Error:"), message(err))

	ce, _ := errors.As(err)
	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		h.hint("Create conductor.yml or pass --config.")

	case errors.ErrCodeConfigInvalid:
		h.hint("Run 'conductor config schema' to see the accepted keys.")

	case errors.ErrCodeInvalidTransition:
		if from, ok := ce.Details["from"].(string); ok {
			allowed := sessions.AllowedTransitions(sessions.State(from))
			if len(allowed) == 0 {
				h.hint(fmt.Sprintf("%s is terminal; no further transitions are allowed.", from))
			} else {
				h.hint(fmt.Sprintf("From %s a session may move to: %v", from, allowed))
			}
		}

	case errors.ErrCodeAlreadyExists:
		if _, ok := ce.Details["pidFile"]; ok {
			h.hint("Stop it with 'conductor daemon stop'.")
		}

	case errors.ErrCodeRootNotFound:
		h.hint("Check the path, or set scanner.root in conductor.yml.")

	case errors.ErrCodeCloneFailed:
		h.hint("Check the remote URL and your git credentials.")

	case errors.ErrCodePersistFailed:
		h.hint("The sessions file could not be written; check permissions on its directory.")
	}

	if h.Verbose && ce != nil {
		fmt.Fprintf(h.Out, "\nError details:\n%s\n", ce.ToJSON())
	}
	return err
}

func (h *ErrorHandler) hint(text string) {
	fmt.Fprintln(h.Out, DefaultTheme.Muted.Render(text))
}

// message prefers the structured message over the wrapped chain.
func message(err error) string {
	if ce, ok := errors.As(err); ok {
		return ce.Message
	}
	return err.Error()
}
