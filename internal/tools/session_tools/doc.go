// Package session_tools provides MCP tools for the style profile workflow.
//
// Session:
//   - session_get: the derived view and profile of the session
//   - session_reset: forget the session and start over
//   - profile_update: set the writer details used in prompts
//   - reminder_dismiss: hide the complete-your-profile reminder
//
// Workflow (each step requires the previous one):
//   - history_fetch: collect sent mail into the local corpus
//   - style_analyze: keep the passages written in the user's own voice
//   - text_generate: write new text in the analysed style
//   - text_refine: revise text without leaving the style
package session_tools
