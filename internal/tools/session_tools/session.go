package session_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailsense/internal/server"
	"github.com/teemow/mailsense/internal/session"
	"github.com/teemow/mailsense/internal/tools/common"
)

func registerSessionTools(s *mcpserver.MCPServer, sc *server.ServerContext, defaultUser string) {
	getTool := mcp.NewTool("session_get",
		mcp.WithDescription("Get the current step, progress flags, last error and profile of the session"),
		common.WithUser(),
	)
	s.AddTool(getTool, common.InstrumentedToolHandler("session_get", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGet(ctx, request, sc, defaultUser)
		}))

	resetTool := mcp.NewTool("session_reset",
		mcp.WithDescription("Sign out, delete fetched mail and the analysed style, and start a fresh session"),
		common.WithUser(),
	)
	s.AddTool(resetTool, common.InstrumentedToolHandler("session_reset", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleReset(ctx, request, sc, defaultUser)
		}))

	profileTool := mcp.NewTool("profile_update",
		mcp.WithDescription("Set the writer details used when generating text"),
		common.WithUser(),
		mcp.WithString("name", mcp.Description("The writer's name")),
		mcp.WithString("role", mcp.Description("The writer's role or title")),
		mcp.WithString("organization", mcp.Description("The writer's organization")),
		mcp.WithString("domain", mcp.Description("The writer's field or industry")),
		mcp.WithString("context", mcp.Description("Anything else the writing should take into account")),
	)
	s.AddTool(profileTool, common.InstrumentedToolHandler("profile_update", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUpdateProfile(ctx, request, sc, defaultUser)
		}))

	dismissTool := mcp.NewTool("reminder_dismiss",
		mcp.WithDescription("Hide the reminder to complete the profile"),
		common.WithUser(),
	)
	s.AddTool(dismissTool, common.InstrumentedToolHandler("reminder_dismiss", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDismissReminder(ctx, request, sc, defaultUser)
		}))
}

func handleGet(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, defaultUser string) (*mcp.CallToolResult, error) {
	userID := common.UserIDFromArgs(request.GetArguments(), defaultUser)
	rec, err := sc.Workflow().Session(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return common.JSONResult(newSessionResult(sc, rec))
}

func handleReset(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, defaultUser string) (*mcp.CallToolResult, error) {
	userID := common.UserIDFromArgs(request.GetArguments(), defaultUser)
	rec, err := sc.Workflow().Reset(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to reset session: %v", err)), nil
	}
	return common.JSONResult(newSessionResult(sc, rec))
}

func handleUpdateProfile(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, defaultUser string) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	userID := common.UserIDFromArgs(args, defaultUser)
	p := session.Profile{
		Name:         stringArg(args, "name"),
		Role:         stringArg(args, "role"),
		Organization: stringArg(args, "organization"),
		Domain:       stringArg(args, "domain"),
		Context:      stringArg(args, "context"),
	}
	rec, err := sc.Workflow().UpdateProfile(ctx, userID, p)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update profile: %v", err)), nil
	}
	return common.JSONResult(newSessionResult(sc, rec))
}

func handleDismissReminder(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, defaultUser string) (*mcp.CallToolResult, error) {
	userID := common.UserIDFromArgs(request.GetArguments(), defaultUser)
	rec, err := sc.Workflow().DismissReminder(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return common.JSONResult(newSessionResult(sc, rec))
}
