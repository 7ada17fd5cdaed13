package session

import (
	"time"

	"github.com/google/uuid"
)

// ErrorKind classifies Record.LastError so views can tell a timeout from a
// failure.
type ErrorKind string

const (
	ErrorKindNone     ErrorKind = ""
	ErrorKindExternal ErrorKind = "external"
	ErrorKindTimeout  ErrorKind = "timeout"
	ErrorKindStorage  ErrorKind = "storage"
	ErrorKindWorkflow ErrorKind = "workflow"
)

// Step is the single screen a view should show, derived from a Record.
type Step string

const (
	StepAuth         Step = "auth"
	StepFetchHistory Step = "fetch_history"
	StepAnalyzeStyle Step = "analyze_style"
	StepReady        Step = "ready"
)

// Profile is the optional personalisation the user fills in after setup.
type Profile struct {
	Name              string `json:"name"`
	Role              string `json:"role"`
	Organization      string `json:"organization"`
	Domain            string `json:"domain"`
	Context           string `json:"context"`
	ProfileComplete   bool   `json:"profileComplete"`
	ReminderDismissed bool   `json:"reminderDismissed"`
}

// Record is the durable session state of one user.
type Record struct {
	UserID         string    `json:"userId"`
	Authenticated  bool      `json:"authenticated"`
	HistoryFetched bool      `json:"historyFetched"`
	StyleAnalyzed  bool      `json:"styleAnalyzed"`
	SetupComplete  bool      `json:"setupComplete"`
	Profile        Profile   `json:"profile"`
	LastError      string    `json:"lastError,omitempty"`
	LastErrorKind  ErrorKind `json:"lastErrorKind,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewUserID returns a fresh user id.
func NewUserID() string {
	return uuid.NewString()
}

// NewRecord returns the default record for userID. An empty userID gets a
// generated one.
func NewRecord(userID string) *Record {
	if userID == "" {
		userID = NewUserID()
	}
	return &Record{UserID: userID}
}

// Clone returns a copy that shares no state with r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// Step derives the current step. Authorization gates everything, then
// history, then style analysis.
func (r *Record) Step() Step {
	switch {
	case !r.Authenticated:
		return StepAuth
	case !r.HistoryFetched:
		return StepFetchHistory
	case !r.StyleAnalyzed:
		return StepAnalyzeStyle
	default:
		return StepReady
	}
}

// SetError records err as the last error. A nil err clears it.
func (r *Record) SetError(kind ErrorKind, err error) {
	if err == nil {
		r.ClearError()
		return
	}
	r.LastError = err.Error()
	r.LastErrorKind = kind
}

// ClearError drops the last error.
func (r *Record) ClearError() {
	r.LastError = ""
	r.LastErrorKind = ErrorKindNone
}

// ShowProfileReminder reports whether the "complete your profile" prompt is due.
func (r *Record) ShowProfileReminder() bool {
	return r.SetupComplete && !r.Profile.ProfileComplete && !r.Profile.ReminderDismissed
}
