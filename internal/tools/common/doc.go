// Package common provides shared utilities for MCP tool implementations.
// It holds the instrumentation wrapper, user resolution and result helpers
// used by every tool package.
package common
