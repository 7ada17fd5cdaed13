package session_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailsense/internal/genai"
	"github.com/teemow/mailsense/internal/server"
	"github.com/teemow/mailsense/internal/tools/common"
	"github.com/teemow/mailsense/internal/workflow"
)

func registerWorkflowTools(s *mcpserver.MCPServer, sc *server.ServerContext, defaultUser string) {
	fetchTool := mcp.NewTool("history_fetch",
		mcp.WithDescription("Fetch the user's sent mail into the local corpus. Requires authorization."),
		common.WithUser(),
		mcp.WithString("after",
			mcp.Description(fmt.Sprintf("Only mail sent after this date, YYYY/MM/DD (default: %s)", workflow.DefaultHistoryAfter)),
		),
		mcp.WithString("before",
			mcp.Description(fmt.Sprintf("Only mail sent before this date, YYYY/MM/DD (default: %s)", workflow.DefaultHistoryBefore)),
		),
		mcp.WithNumber("maxMessages",
			mcp.Description(fmt.Sprintf("Maximum number of messages to fetch (default: %d)", workflow.DefaultMaxMessages)),
		),
	)
	s.AddTool(fetchTool, common.InstrumentedToolHandler("history_fetch", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleFetchHistory(ctx, request, sc, defaultUser)
		}))

	analyzeTool := mcp.NewTool("style_analyze",
		mcp.WithDescription("Filter the fetched mail down to passages in the user's own voice. Requires fetched history."),
		common.WithUser(),
	)
	s.AddTool(analyzeTool, common.InstrumentedToolHandler("style_analyze", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAnalyzeStyle(ctx, request, sc, defaultUser)
		}))

	generateTool := mcp.NewTool("text_generate",
		mcp.WithDescription("Write new text in the user's style. Either give a free-form prompt or describe the text with genre, topic, tone and recipient."),
		common.WithUser(),
		mcp.WithString("prompt", mcp.Description("Free-form description of the text to write")),
		mcp.WithString("genre", mcp.Description("Kind of text, e.g. email or memo (default: email)")),
		mcp.WithString("topic", mcp.Description("What the text is about")),
		mcp.WithString("tone", mcp.Description("Tone of the text (default: professional)")),
		mcp.WithString("recipient", mcp.Description("Who the text is addressed to (default: a colleague)")),
		mcp.WithNumber("length", mcp.Description(fmt.Sprintf("Approximate length in words (default: %d)", genai.DefaultLength))),
	)
	s.AddTool(generateTool, common.InstrumentedToolHandler("text_generate", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGenerate(ctx, request, sc, defaultUser)
		}))

	refineTool := mcp.NewTool("text_refine",
		mcp.WithDescription("Revise text according to an instruction while keeping the user's style"),
		common.WithUser(),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The text to revise"),
		),
		mcp.WithString("instruction",
			mcp.Required(),
			mcp.Description("How to revise it, e.g. 'make it shorter'"),
		),
	)
	s.AddTool(refineTool, common.InstrumentedToolHandler("text_refine", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRefine(ctx, request, sc, defaultUser)
		}))
}

func handleFetchHistory(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, defaultUser string) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	userID := common.UserIDFromArgs(args, defaultUser)
	req := workflow.HistoryRequest{
		After:       stringArg(args, "after"),
		Before:      stringArg(args, "before"),
		MaxMessages: int64(intArg(args, "maxMessages")),
	}
	res, err := sc.Workflow().FetchHistory(ctx, userID, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch history: %v", err)), nil
	}
	return common.JSONResult(res)
}

func handleAnalyzeStyle(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, defaultUser string) (*mcp.CallToolResult, error) {
	userID := common.UserIDFromArgs(request.GetArguments(), defaultUser)
	res, err := sc.Workflow().AnalyzeStyle(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to analyze style: %v", err)), nil
	}
	return common.JSONResult(res)
}

func handleGenerate(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, defaultUser string) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	userID := common.UserIDFromArgs(args, defaultUser)
	req := genai.GenerateRequest{
		Prompt:    stringArg(args, "prompt"),
		Genre:     stringArg(args, "genre"),
		Topic:     stringArg(args, "topic"),
		Tone:      stringArg(args, "tone"),
		Recipient: stringArg(args, "recipient"),
		Length:    intArg(args, "length"),
	}
	text, err := sc.Workflow().Generate(ctx, userID, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to generate text: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

func handleRefine(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, defaultUser string) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	userID := common.UserIDFromArgs(args, defaultUser)
	req := genai.RefineRequest{
		Text:        stringArg(args, "text"),
		Instruction: stringArg(args, "instruction"),
	}
	if req.Text == "" || req.Instruction == "" {
		return mcp.NewToolResultError("text and instruction are required"), nil
	}
	text, err := sc.Workflow().Refine(ctx, userID, req)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to refine text: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}
