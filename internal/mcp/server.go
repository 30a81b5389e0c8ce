// Package mcp exposes the task control surface as MCP tools over stdio, so
// agent clients can submit and monitor browser tasks without the HTTP API.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"browserbridge/internal/executor"
	"browserbridge/internal/store"
)

// MCPServer represents the MCP server that handles protocol communication.
type MCPServer struct {
	controller *executor.Controller
	logger     *slog.Logger
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(controller *executor.Controller, logger *slog.Logger) *MCPServer {
	return &MCPServer{
		controller: controller,
		logger:     logger,
	}
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"browserbridge",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.logger.Info("MCP server starting on stdio")

	return server.ServeStdio(mcpServer)
}

// registerTools registers all available MCP tools.
func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.NewTool("browser_run_task",
		mcp.WithDescription("Run a browser automation task. Returns the task id immediately; poll browser_task_status for progress."),
		mcp.WithString("task",
			mcp.Required(),
			mcp.Description("Natural language instruction for the browser agent"),
		),
		mcp.WithString("ai_provider",
			mcp.Description("Model provider key (openai, anthropic, mistral, google, ollama, azure). Defaults to the configured provider."),
		),
		mcp.WithBoolean("save_browser_data",
			mcp.Description("Capture session cookies onto the task document when the task ends"),
		),
	), s.handleRunTask)

	mcpServer.AddTool(mcp.NewTool("browser_task_status",
		mcp.WithDescription("Get the status, output and error of a task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleTaskStatus)

	mcpServer.AddTool(mcp.NewTool("browser_stop_task",
		mcp.WithDescription("Request termination of a running task"),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleStopTask)

	mcpServer.AddTool(mcp.NewTool("browser_list_tasks",
		mcp.WithDescription("List tasks, newest first"),
		mcp.WithNumber("page",
			mcp.Description("Page number, starting at 1"),
			mcp.Min(1),
		),
	), s.handleListTasks)
}

func (s *MCPServer) handleRunTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instruction := mcp.ParseString(request, "task", "")
	if instruction == "" {
		return mcp.NewToolResultError("task instruction is required"), nil
	}

	task, err := s.controller.Submit(ctx, store.DefaultScope, executor.SubmitRequest{
		Instruction:     instruction,
		Provider:        mcp.ParseString(request, "ai_provider", ""),
		SaveBrowserData: mcp.ParseBoolean(request, "save_browser_data", false),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("submit failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task submitted\nID: %s\nStatus: %s", task.ID, task.Status)), nil
}

func (s *MCPServer) handleTaskStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	if taskID == "" {
		return mcp.NewToolResultError("task_id is required"), nil
	}

	task, err := s.controller.Observe(ctx, store.DefaultScope, taskID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status failed: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Status: %s\nSteps: %d\n", task.Status, len(task.Steps))
	if task.Output != nil {
		fmt.Fprintf(&b, "Output: %s\n", *task.Output)
	}
	if task.Error != nil {
		fmt.Fprintf(&b, "Error: %s\n", *task.Error)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *MCPServer) handleStopTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	if taskID == "" {
		return mcp.NewToolResultError("task_id is required"), nil
	}

	message, err := s.controller.Stop(ctx, store.DefaultScope, taskID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stop failed: %v", err)), nil
	}
	return mcp.NewToolResultText(message), nil
}

func (s *MCPServer) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page := int(mcp.ParseFloat64(request, "page", 1))

	result, err := s.controller.List(ctx, store.DefaultScope, page, 20)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	if len(result.Tasks) == 0 {
		return mcp.NewToolResultText("No tasks found"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tasks (page %d of %d):\n\n", result.Total, result.Page, result.TotalPages)
	for _, task := range result.Tasks {
		fmt.Fprintf(&b, "- %s [%s] %s\n", task.ID, task.Status, truncate(task.Instruction, 80))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
