// Package workflow implements the steps that follow authorization: fetching
// the sent-mail history, distilling the author's voice from it, and writing
// new text in that voice.
//
// Every step checks its precondition against the session record, persists
// the result and publishes a change hint so open views re-render. Steps run
// in order:
//
//	Authenticated -> HistoryFetched -> StyleAnalyzed (SetupComplete)
//
// Signing out clears Authenticated only. The history and style artifacts
// stay on disk, and the derived step gates on authorization first, so a
// signed-out user sees the authorization step until they sign in again.
package workflow
