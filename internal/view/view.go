package view

import (
	"github.com/teemow/mailsense/internal/flow"
	"github.com/teemow/mailsense/internal/session"
)

// Banner is a dismissible notice above the current step.
type Banner struct {
	Kind      session.ErrorKind `json:"kind"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
}

// View is everything a surface needs to draw the session.
type View struct {
	UserID         string       `json:"userId"`
	Step           session.Step `json:"step"`
	Authenticated  bool         `json:"authenticated"`
	AuthInProgress bool         `json:"authInProgress"`
	HostSurfaceID  string       `json:"hostSurfaceId,omitempty"`

	// FocusSurface asks the surface to bring the existing authorization
	// window forward instead of opening a new one.
	FocusSurface bool `json:"focusSurface,omitempty"`

	Banner *Banner `json:"banner,omitempty"`

	HistoryFetched      bool `json:"historyFetched"`
	StyleAnalyzed       bool `json:"styleAnalyzed"`
	SetupComplete       bool `json:"setupComplete"`
	ShowProfileReminder bool `json:"showProfileReminder"`
}

// Render derives the view for rec. live is the user's live flow, or nil.
func Render(rec *session.Record, live *flow.Info) View {
	v := View{
		UserID:              rec.UserID,
		Step:                rec.Step(),
		Authenticated:       rec.Authenticated,
		HistoryFetched:      rec.HistoryFetched,
		StyleAnalyzed:       rec.StyleAnalyzed,
		SetupComplete:       rec.SetupComplete,
		ShowProfileReminder: rec.ShowProfileReminder(),
	}

	if live != nil {
		v.AuthInProgress = true
		v.HostSurfaceID = live.HostSurfaceID
		return v
	}

	if rec.LastError != "" {
		kind := rec.LastErrorKind
		if kind == session.ErrorKindNone {
			kind = session.ErrorKindExternal
		}
		v.Banner = &Banner{
			Kind:      kind,
			Message:   rec.LastError,
			Retryable: kind != session.ErrorKindStorage,
		}
	}
	return v
}
