package session_tools

import (
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailsense/internal/server"
	"github.com/teemow/mailsense/internal/session"
	"github.com/teemow/mailsense/internal/view"
)

// RegisterSessionTools registers the session and workflow tools with the MCP
// server. defaultUser is the session used when a call names none.
func RegisterSessionTools(s *mcpserver.MCPServer, sc *server.ServerContext, defaultUser string) error {
	if defaultUser == "" {
		return fmt.Errorf("a default user id is required")
	}
	registerSessionTools(s, sc, defaultUser)
	registerWorkflowTools(s, sc, defaultUser)
	return nil
}

// sessionResult is the session as the tools show it.
type sessionResult struct {
	View    view.View       `json:"view"`
	Profile session.Profile `json:"profile"`
}

func newSessionResult(sc *server.ServerContext, rec *session.Record) sessionResult {
	return sessionResult{
		View:    view.Render(rec, sc.Auth().Flow(rec.UserID)),
		Profile: rec.Profile,
	}
}

func stringArg(args map[string]interface{}, name string) string {
	v, _ := args[name].(string)
	return v
}

// intArg reads a JSON number argument. Numbers arrive as float64.
func intArg(args map[string]interface{}, name string) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
