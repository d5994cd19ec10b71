package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/contec/internal/auth"
	"github.com/kalambet/contec/internal/conversation"
	"github.com/kalambet/contec/internal/dialog"
	"github.com/kalambet/contec/internal/knowledge"
	"github.com/kalambet/contec/internal/training"
)

const knowledgeResourceURI = "knowledge://base"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Controller *conversation.Controller
	Gate       *auth.Gate
	Store      knowledge.Store
	Version    string
}

// NewMCPServer creates an MCP server exposing the knowledge base to agents.
// Each tool call runs in a fresh conversation.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"contec",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("contec answers questions from a knowledge base taught by an operator."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask contec a question. Returns the taught answer for the closest known question, or a notice that the question is unknown."),
			mcp.WithString("question", mcp.Description("The question to ask"), mcp.Required()),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("teach",
			mcp.WithDescription("Teach contec an answer. Requires the trainer password."),
			mcp.WithString("question", mcp.Description("Question to teach"), mcp.Required()),
			mcp.WithString("answer", mcp.Description("Answer to store"), mcp.Required()),
			mcp.WithString("password", mcp.Description("Trainer password"), mcp.Required()),
		),
		mcpTeach(deps),
	)

	s.AddTool(
		mcp.NewTool("list_knowledge",
			mcp.WithDescription("List taught question/answer pairs in stored order."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default all)")),
		),
		mcpListKnowledge(deps),
	)

	s.AddResource(
		mcp.NewResource(
			knowledgeResourceURI,
			"Knowledge Base",
			mcp.WithResourceDescription("The full knowledge base as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceKnowledge(deps),
	)

	return s
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return mcpError("question is required"), nil
		}

		sess := dialog.New()
		turn, err := deps.Controller.HandleInput(ctx, sess, question)
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		var b strings.Builder
		for i, m := range turn.Replies {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(m.Text)
		}
		if turn.Warning != nil {
			fmt.Fprintf(&b, "\n(warning: %v)", turn.Warning)
		}
		return mcpText(b.String()), nil
	}
}

func mcpTeach(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return mcpError("question is required"), nil
		}
		answer, err := req.RequireString("answer")
		if err != nil {
			return mcpError("answer is required"), nil
		}
		password, err := req.RequireString("password")
		if err != nil {
			return mcpError("password is required"), nil
		}
		if err := deps.Gate.Check(password); err != nil {
			return mcpError(err.Error()), nil
		}

		sess := dialog.New()
		if err := sess.AwaitTraining(strings.TrimSpace(question)); err != nil {
			return mcpError(err.Error()), nil
		}
		res, err := deps.Controller.Train(ctx, sess, answer, true)
		if err != nil {
			return mcpError(fmt.Sprintf("teach failed: %v", err)), nil
		}
		switch res.Status {
		case training.Committed:
			return mcpText(dialog.Learned(res.Entry.Question)), nil
		case training.EmptyAnswer:
			return mcpError("answer must not be empty"), nil
		default:
			return mcpError(fmt.Sprintf("not taught: %s", res.Status)), nil
		}
	}
}

func mcpListKnowledge(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kb, err := deps.Store.Load(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("loading knowledge base: %v", err)), nil
		}

		entries := kb.Questions
		if limit := req.GetInt("limit", 0); limit > 0 && limit < len(entries) {
			entries = entries[:limit]
		}
		if entries == nil {
			entries = []knowledge.Entry{}
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal entries: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceKnowledge(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		kb, err := deps.Store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load knowledge base: %w", err)
		}
		if kb.Questions == nil {
			kb.Questions = []knowledge.Entry{}
		}

		b, err := json.Marshal(kb)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal knowledge base: %w", err)
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
