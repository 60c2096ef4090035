package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	openresponses "github.com/openresponses/openresponses"
	"github.com/openresponses/openresponses/pkg/config"
)

const mcpProtocolVersion = "2024-11-05"

// MCPSource is one connected MCP server whose tools are registered as
// native entries. Tool names are prefixed "server.tool"; the bare tool name
// is kept as an alias.
type MCPSource struct {
	name   string
	client *mcpclient.Client
}

// ConnectMCP connects to a configured server and lists its tools.
func ConnectMCP(ctx context.Context, cfg config.MCPServerConfig) (*MCPSource, error) {
	c, err := newMCPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating mcp client for %s: %w", cfg.Name, err)
	}

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting mcp client for %s: %w", cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpProtocolVersion
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "openresponses",
		Version: openresponses.Version,
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, fmt.Errorf("initializing mcp server %s: %w", cfg.Name, err)
	}

	return &MCPSource{name: cfg.Name, client: c}, nil
}

func newMCPClient(cfg config.MCPServerConfig) (*mcpclient.Client, error) {
	switch cfg.Transport {
	case config.MCPTransportStdio:
		return mcpclient.NewStdioMCPClient(cfg.Command, nil, cfg.Args...)
	case config.MCPTransportSSE:
		return mcpclient.NewSSEMCPClient(cfg.URL, mcpclient.WithHeaders(cfg.Headers))
	case config.MCPTransportStreamableHTTP:
		return mcpclient.NewStreamableHttpClient(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// RegisterTools discovers the server's tools and registers each one.
func (s *MCPSource) RegisterTools(ctx context.Context, reg *Registry) error {
	listResp, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("listing tools from %s: %w", s.name, err)
	}

	for _, t := range listResp.Tools {
		tool := &Tool{
			Name:        s.name + "." + t.Name,
			Description: t.Description,
			Variant:     VariantNative,
			Aliases:     []string{t.Name},
			Parameters:  mcpSchema(t.InputSchema),
			Handler:     s.callHandler(t.Name),
		}
		if err := reg.RegisterTool(tool); err != nil {
			slog.Warn("skipping mcp tool", "server", s.name, "tool", t.Name, "error", err)
			continue
		}
	}

	slog.Info("registered mcp tools", "server", s.name, "count", len(listResp.Tools))
	return nil
}

// Close shuts the server connection down.
func (s *MCPSource) Close() error {
	return s.client.Close()
}

func (s *MCPSource) callHandler(name string) Handler {
	return func(ctx context.Context, inv Invocation) (string, error) {
		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = inv.Args

		resp, err := s.client.CallTool(ctx, req)
		if err != nil {
			return "", fmt.Errorf("mcp call %s.%s: %w", s.name, name, err)
		}

		text := mcpText(resp.Content)
		if resp.IsError {
			if text == "" {
				text = "unknown error"
			}
			return "", fmt.Errorf("mcp tool %s.%s failed: %s", s.name, name, text)
		}
		return text, nil
	}
}

func mcpText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// mcpSchema flattens the typed schema into the map shape tools carry.
func mcpSchema(schema mcp.ToolInputSchema) map[string]interface{} {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
