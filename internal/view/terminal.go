package view

import (
	"fmt"
	"io"
	"sync"

	"github.com/teemow/mailsense/internal/session"
)

// TerminalSink prints one line per distinct view.
type TerminalSink struct {
	w    io.Writer
	mu   sync.Mutex
	last string
}

// NewTerminalSink creates a sink writing to w.
func NewTerminalSink(w io.Writer) *TerminalSink {
	return &TerminalSink{w: w}
}

// Show implements Sink.
func (s *TerminalSink) Show(v View) error {
	line := Describe(v)

	s.mu.Lock()
	defer s.mu.Unlock()
	if line == s.last {
		return nil
	}
	s.last = line
	_, err := fmt.Fprintln(s.w, line)
	return err
}

// Describe summarises v in one line.
func Describe(v View) string {
	switch {
	case v.FocusSurface:
		return "Authorization already in progress, finish it in the open browser window."
	case v.AuthInProgress:
		return "Waiting for authorization in the browser..."
	case v.Banner != nil:
		return fmt.Sprintf("Error (%s): %s", v.Banner.Kind, v.Banner.Message)
	}

	switch v.Step {
	case session.StepAuth:
		return "Not signed in."
	case session.StepFetchHistory:
		return "Signed in. Next: fetch your sent mail."
	case session.StepAnalyzeStyle:
		return "Sent mail fetched. Next: analyze your writing style."
	default:
		if v.ShowProfileReminder {
			return "Ready. Complete your profile for better results."
		}
		return "Ready."
	}
}
