// Package auth orchestrates authorization flows.
//
// The Orchestrator drives one flow per user through
// Idle -> Starting -> Polling -> {Succeeded, Failed, TimedOut} -> Idle.
// A flow is resolved by whichever of these arrives first: a positive status
// poll, a completion callback keyed by flow id, a completion URL observed on
// the authorization surface, a user cancel, or the hard timeout. Later
// arrivals find no live flow and do nothing.
//
// Resolution updates the session store, publishes one terminal broadcast
// and releases the flow from the tracker, in that order.
package auth
