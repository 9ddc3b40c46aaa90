package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/car-knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/car-knowledge-assistant/internal/core/ports"
)

const (
	serverName    = "car-knowledge-assistant"
	serverVersion = "1.0.0"
)

// NewServer exposes the assistant as MCP tools.
func NewServer(assistant ports.Assistant) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))

	h := &handlers{assistant: assistant}
	s.AddTool(mcp.NewTool("search_manual",
		mcp.WithDescription("Retrieve the most relevant Volkswagen manual passages for a query."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free-text search query")),
		mcp.WithNumber("top_k", mcp.Description("Number of passages to return")),
	), h.searchManual)
	s.AddTool(mcp.NewTool("ask_assistant",
		mcp.WithDescription("Answer a car question from the Volkswagen manual, or report why it was blocked."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Question about the car")),
		mcp.WithNumber("top_k", mcp.Description("Number of passages used as context")),
	), h.askAssistant)
	return s
}

// ServeStdio blocks until ctx is cancelled or stdin closes.
func ServeStdio(ctx context.Context, s *server.MCPServer, stdin io.Reader, stdout io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, stdin, stdout)
}

type handlers struct {
	assistant ports.Assistant
}

func (h *handlers) searchManual(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := h.assistant.Search(ctx, query, req.GetInt("top_k", 0))
	if err != nil {
		return toolError("search_manual", err), nil
	}
	return jsonResult(result)
}

func (h *handlers) askAssistant(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := h.assistant.Ask(ctx, question, req.GetInt("top_k", 0))
	if err != nil {
		return toolError("ask_assistant", err), nil
	}
	if result.Blocked() {
		return jsonResult(map[string]string{
			"question": question,
			"status":   "blocked",
			"reason":   result.Decision.Reason,
		})
	}
	return jsonResult(result.Answer)
}

func toolError(tool string, err error) *mcp.CallToolResult {
	if errors.Is(err, domain.ErrIndexNotReady) {
		return mcp.NewToolResultError(domain.NotInitializedMessage)
	}
	slog.Error("mcp_tool_failed", "tool", tool, "error", err.Error())
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
