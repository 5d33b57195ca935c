package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/LazyMisha/prmptlaba/internal/apperr"
	"github.com/LazyMisha/prmptlaba/internal/library"
	"github.com/LazyMisha/prmptlaba/internal/storage"
)

const recentHistorySize = 10

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Enhancer Enhancer
	History  *storage.HistoryStore
	Library  *library.Library
	Version  string
	Logger   *slog.Logger
}

// NewMCPServer creates an MCP server with the prmptlaba tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := server.NewMCPServer(
		"prmptlaba",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("prmptlaba rewrites prompts for a target model and keeps a library of the results."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("enhance_prompt",
			mcp.WithDescription("Rewrite a prompt so it works better for the given target (e.g. chatgpt, image-generator)."),
			mcp.WithString("target", mcp.Description("Target id, see the targets list"), mcp.Required()),
			mcp.WithString("prompt", mcp.Description("The prompt to improve"), mcp.Required()),
			mcp.WithBoolean("save_history", mcp.Description("Also record the result in history")),
		),
		mcpEnhancePrompt(deps),
	)

	s.AddTool(
		mcp.NewTool("list_history",
			mcp.WithDescription("List recent enhancements, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 10)")),
		),
		mcpListHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("save_prompt",
			mcp.WithDescription("Save a prompt to the library. Without collection_id it goes to the target's default collection."),
			mcp.WithString("enhanced_prompt", mcp.Description("Prompt text to keep"), mcp.Required()),
			mcp.WithString("target", mcp.Description("Target the prompt was written for"), mcp.Required()),
			mcp.WithString("original_prompt", mcp.Description("The prompt before enhancement")),
			mcp.WithString("collection_id", mcp.Description("Collection to save into")),
			mcp.WithString("notes", mcp.Description("Free-form notes")),
		),
		mcpSavePrompt(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"history://recent",
			"Recent Enhancements",
			mcp.WithResourceDescription(fmt.Sprintf("Last %d history entries", recentHistorySize)),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpEnhancePrompt(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target, err := req.RequireString("target")
		if err != nil {
			return mcpError("target is required"), nil
		}
		prompt, err := req.RequireString("prompt")
		if err != nil {
			return mcpError("prompt is required"), nil
		}

		enhanced, err := deps.Enhancer.Enhance(ctx, target, prompt)
		if err != nil {
			return mcpError(mcpErrorText("enhancement failed", err)), nil
		}

		if req.GetBool("save_history", false) && deps.History != nil {
			if _, err := deps.History.Save(ctx, storage.NewHistoryEntry{
				OriginalPrompt: prompt,
				EnhancedPrompt: enhanced,
				Target:         target,
			}); err != nil {
				deps.Logger.Warn("saving history entry", "error", err)
			}
		}
		return mcpText(enhanced), nil
	}
}

func mcpListHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", recentHistorySize)
		if limit <= 0 {
			limit = recentHistorySize
		}
		if most := deps.History.Limit(); limit > most {
			limit = most
		}

		entries, err := deps.History.List(ctx, limit, 0)
		if err != nil {
			return mcpError(mcpErrorText("listing history failed", err)), nil
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal history: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSavePrompt(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		enhanced, err := req.RequireString("enhanced_prompt")
		if err != nil {
			return mcpError("enhanced_prompt is required"), nil
		}
		target, err := req.RequireString("target")
		if err != nil {
			return mcpError("target is required"), nil
		}

		p, err := deps.Library.SavePrompt(ctx, library.SavePromptInput{
			OriginalPrompt: req.GetString("original_prompt", ""),
			EnhancedPrompt: enhanced,
			Target:         target,
			CollectionID:   req.GetString("collection_id", ""),
			Notes:          req.GetString("notes", ""),
		})
		if err != nil {
			return mcpError(mcpErrorText("saving prompt failed", err)), nil
		}
		return mcpText(fmt.Sprintf("Saved prompt %s in collection %s", p.ID, p.CollectionID)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		entries, err := deps.History.List(ctx, recentHistorySize, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent history: %w", err)
		}

		type entrySummary struct {
			ID        string `json:"id"`
			Target    string `json:"target"`
			Timestamp string `json:"timestamp"`
			Enhanced  string `json:"enhanced"`
		}

		summaries := make([]entrySummary, len(entries))
		for i, e := range entries {
			text := e.EnhancedPrompt
			if utf8.RuneCountInString(text) > 200 {
				runes := []rune(text)
				text = string(runes[:200]) + "..."
			}
			summaries[i] = entrySummary{
				ID:        e.ID,
				Target:    e.Target,
				Timestamp: e.Timestamp.Format(time.RFC3339),
				Enhanced:  text,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal history: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// mcpErrorText renders err for a tool result, keeping the retry hint.
func mcpErrorText(prefix string, err error) string {
	msg := fmt.Sprintf("%s: %s", prefix, apperr.PublicMessage(err))
	if apperr.IsRetryable(err) {
		msg += " (retryable)"
	}
	return msg
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
