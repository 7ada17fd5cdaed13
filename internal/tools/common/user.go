package common

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// UserArg is the argument naming the session a tool acts on.
const UserArg = "userId"

// UserIDFromArgs returns the userId argument, or fallback when it is
// missing, empty or not a string.
func UserIDFromArgs(args map[string]interface{}, fallback string) string {
	if v, ok := args[UserArg].(string); ok && v != "" {
		return v
	}
	return fallback
}

// WithUser is the tool option every session-scoped tool carries.
func WithUser() mcp.ToolOption {
	return mcp.WithString(UserArg,
		mcp.Description("Session user id (default: the local user)"),
	)
}

// JSONResult renders v as an indented JSON text result.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
