package auth_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailsense/internal/server"
	"github.com/teemow/mailsense/internal/tools/common"
	"github.com/teemow/mailsense/internal/view"
)

// RegisterAuthTools registers the authorization tools with the MCP server.
func RegisterAuthTools(s *mcpserver.MCPServer, sc *server.ServerContext, defaultUser string) error {
	if defaultUser == "" {
		return fmt.Errorf("a default user id is required")
	}

	startTool := mcp.NewTool("auth_start",
		mcp.WithDescription("Start Google authorization for the session. Opens the consent page; if a flow is already in progress nothing new is opened."),
		common.WithUser(),
	)
	s.AddTool(startTool, common.InstrumentedToolHandler("auth_start", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleStart(ctx, request, sc, defaultUser)
		}))

	cancelTool := mcp.NewTool("auth_cancel",
		mcp.WithDescription("Cancel the authorization flow in progress, if any"),
		common.WithUser(),
	)
	s.AddTool(cancelTool, common.InstrumentedToolHandler("auth_cancel", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCancel(ctx, request, sc, defaultUser)
		}))

	stateTool := mcp.NewTool("auth_state",
		mcp.WithDescription("Get whether the session is authenticated, whether a flow is in progress and the last error"),
		common.WithUser(),
	)
	s.AddTool(stateTool, common.InstrumentedToolHandler("auth_state", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleState(ctx, request, sc, defaultUser)
		}))

	navigationTool := mcp.NewTool("auth_report_navigation",
		mcp.WithDescription("Report a URL the authorization window navigated to. A completion URL resolves the live flow."),
		common.WithUser(),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL the authorization window reached"),
		),
	)
	s.AddTool(navigationTool, common.InstrumentedToolHandler("auth_report_navigation", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleNavigation(ctx, request, sc, defaultUser)
		}))

	signOutTool := mcp.NewTool("auth_signout",
		mcp.WithDescription("Sign the session out of Google. Fetched history and the analysed style are kept."),
		common.WithUser(),
	)
	s.AddTool(signOutTool, common.InstrumentedToolHandler("auth_signout", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSignOut(ctx, request, sc, defaultUser)
		}))

	return nil
}

func handleStart(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, defaultUser string) (*mcp.CallToolResult, error) {
	userID := common.UserIDFromArgs(request.GetArguments(), defaultUser)
	res, err := sc.Auth().Start(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start authorization: %v", err)), nil
	}
	return common.JSONResult(res)
}

func handleCancel(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, defaultUser string) (*mcp.CallToolResult, error) {
	userID := common.UserIDFromArgs(request.GetArguments(), defaultUser)
	if err := sc.Auth().Cancel(ctx, userID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to cancel authorization: %v", err)), nil
	}
	return mcp.NewToolResultText("Authorization cancelled"), nil
}

func handleState(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, defaultUser string) (*mcp.CallToolResult, error) {
	userID := common.UserIDFromArgs(request.GetArguments(), defaultUser)
	st, err := sc.Auth().GetAuthState(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return common.JSONResult(st)
}

func handleNavigation(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, defaultUser string) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	rawURL, ok := args["url"].(string)
	if !ok || rawURL == "" {
		return mcp.NewToolResultError("url is required"), nil
	}
	userID := common.UserIDFromArgs(args, defaultUser)
	resolved := sc.Auth().ObserveNavigation(ctx, userID, rawURL)
	return common.JSONResult(map[string]bool{"resolved": resolved})
}

func handleSignOut(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, defaultUser string) (*mcp.CallToolResult, error) {
	userID := common.UserIDFromArgs(request.GetArguments(), defaultUser)
	rec, err := sc.Workflow().SignOut(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to sign out: %v", err)), nil
	}
	return common.JSONResult(view.Render(rec, sc.Auth().Flow(rec.UserID)))
}
