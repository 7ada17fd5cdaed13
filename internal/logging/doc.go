// Package logging provides structured logging utilities for mailsense.
//
// All components log through log/slog. This package keeps attribute names
// consistent and makes sure identifiers that could be traced back to a person
// are hashed before they reach a log sink.
//
// # Usage Patterns
//
// Create a component logger:
//
//	logger := logging.WithComponent(slog.Default(), "auth")
//	logger.Info("flow started",
//	    logging.UserHash(userID),
//	    logging.FlowID(flowID))
//
// Errors can be attached unconditionally:
//
//	logger.Warn("store write failed", logging.Err(err)) // omitted when err is nil
//
// # Security Considerations
//
//   - User ids are hashed with UserHash
//   - OAuth tokens and authorization codes are never logged; use SanitizeToken
package logging
