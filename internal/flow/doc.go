// Package flow tracks live authorization attempts.
//
// A Tracker holds at most one Attempt per user. Acquisition is atomic, so
// concurrent start requests for the same user observe a single attempt.
// An Attempt is resolved exactly once: every completion path (poll result,
// completion callback, cancellation, timeout) races on Claim and only the
// winner acts.
package flow
