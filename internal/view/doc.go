// Package view renders what a user interface should show for a session.
//
// Render is a pure function of the session record and the live flow. A
// Controller keeps one sink current by re-rendering from the store on
// every broadcast for its user, so it never depends on message order.
package view
