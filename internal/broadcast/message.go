// Package broadcast fans session change notifications out to every
// interested observer.
//
// Messages are hints: they are delivered at least once, carry enough to
// render a status line, and observers re-read the session store for the
// authoritative state.
package broadcast

import "time"

// Message describes a session change for one user.
type Message struct {
	UserID         string     `json:"userId"`
	AuthInProgress bool       `json:"authInProgress"`
	Authenticated  *bool      `json:"authenticated,omitempty"`
	Error          string     `json:"error,omitempty"`
	ErrorKind      string     `json:"errorKind,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`

	// Origin identifies the publishing process for relay loop suppression.
	Origin string `json:"origin,omitempty"`
}

// InProgress announces that a flow entered polling.
func InProgress(userID string) Message {
	return Message{UserID: userID, AuthInProgress: true}
}

// Succeeded announces successful authorization.
func Succeeded(userID string, at time.Time) Message {
	ok := true
	return Message{UserID: userID, Authenticated: &ok, CompletedAt: &at}
}

// Failed announces a flow that ended without authorization.
func Failed(userID, kind string, err error) Message {
	msg := Message{UserID: userID, ErrorKind: kind}
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}

// Cancelled announces a flow the user abandoned.
func Cancelled(userID string) Message {
	return Message{UserID: userID}
}

// Changed is a bare hint that the record of userID changed.
func Changed(userID string, inProgress bool) Message {
	return Message{UserID: userID, AuthInProgress: inProgress}
}

// Terminal reports whether msg ends a flow.
func (m Message) Terminal() bool {
	return !m.AuthInProgress && (m.Authenticated != nil || m.Error != "")
}
