package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRecord(t *testing.T) {
	rec := NewRecord("")
	assert.True(t, ValidUserID(rec.UserID))
	assert.False(t, rec.Authenticated)
	assert.False(t, rec.HistoryFetched)
	assert.False(t, rec.StyleAnalyzed)
	assert.False(t, rec.SetupComplete)
	assert.Empty(t, rec.LastError)
	assert.Equal(t, Profile{}, rec.Profile)

	assert.Equal(t, "fixed", NewRecord("fixed").UserID)
	assert.NotEqual(t, NewRecord("").UserID, NewRecord("").UserID)
}

func TestRecord_Step(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want Step
	}{
		{"fresh", Record{}, StepAuth},
		{"authenticated", Record{Authenticated: true}, StepFetchHistory},
		{"history", Record{Authenticated: true, HistoryFetched: true}, StepAnalyzeStyle},
		{"ready", Record{Authenticated: true, HistoryFetched: true, StyleAnalyzed: true}, StepReady},
		{"signed out keeps progress but gates on auth", Record{HistoryFetched: true, StyleAnalyzed: true}, StepAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.Step())
		})
	}
}

func TestRecord_Errors(t *testing.T) {
	rec := NewRecord("u1")

	rec.SetError(ErrorKindTimeout, errors.New("timed out"))
	assert.Equal(t, "timed out", rec.LastError)
	assert.Equal(t, ErrorKindTimeout, rec.LastErrorKind)

	rec.SetError(ErrorKindExternal, nil)
	assert.Empty(t, rec.LastError)
	assert.Equal(t, ErrorKindNone, rec.LastErrorKind)
}

func TestRecord_ShowProfileReminder(t *testing.T) {
	rec := Record{SetupComplete: true}
	assert.True(t, rec.ShowProfileReminder())

	rec.Profile.ReminderDismissed = true
	assert.False(t, rec.ShowProfileReminder())

	rec = Record{SetupComplete: true, Profile: Profile{ProfileComplete: true}}
	assert.False(t, rec.ShowProfileReminder())

	assert.False(t, (&Record{}).ShowProfileReminder())
}

func TestRecord_Clone(t *testing.T) {
	rec := NewRecord("u1")
	cp := rec.Clone()
	cp.Profile.Name = "changed"
	cp.Authenticated = true

	assert.Empty(t, rec.Profile.Name)
	assert.False(t, rec.Authenticated)
	assert.Nil(t, (*Record)(nil).Clone())
}
