package config

import "fmt"

// MCPTransport identifies how an MCP server is reached.
type MCPTransport string

const (
	MCPTransportStdio          MCPTransport = "stdio"
	MCPTransportSSE            MCPTransport = "sse"
	MCPTransportStreamableHTTP MCPTransport = "streamable-http"
)

// ToolsConfig configures external tool sources.
type ToolsConfig struct {
	// MCPServers lists MCP servers whose tools are registered at startup.
	MCPServers []MCPServerConfig `yaml:"mcp_servers,omitempty" json:"mcp_servers,omitempty"`
}

// MCPServerConfig configures one MCP server connection.
type MCPServerConfig struct {
	// Name prefixes the discovered tool names ("name.tool").
	Name string `yaml:"name" json:"name"`

	// Transport to the server: stdio, sse, or streamable-http.
	// Default: stdio when command is set, streamable-http otherwise.
	Transport MCPTransport `yaml:"transport,omitempty" json:"transport,omitempty"`

	// Command starts the server process (stdio transport).
	Command string `yaml:"command,omitempty" json:"command,omitempty"`

	// Args passed to the command.
	Args []string `yaml:"args,omitempty" json:"args,omitempty"`

	// URL of the server (sse and streamable-http transports).
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Headers sent with every request (sse and streamable-http).
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// SetDefaults applies default values.
func (c *ToolsConfig) SetDefaults() {
	for i := range c.MCPServers {
		c.MCPServers[i].SetDefaults()
	}
}

// Validate checks every declared MCP server.
func (c *ToolsConfig) Validate() error {
	names := make(map[string]bool)
	for i, server := range c.MCPServers {
		if err := server.Validate(); err != nil {
			return fmt.Errorf("mcp_servers[%d]: %w", i, err)
		}
		if names[server.Name] {
			return fmt.Errorf("duplicate mcp server name: %s", server.Name)
		}
		names[server.Name] = true
	}
	return nil
}

// SetDefaults applies default values for one server.
func (c *MCPServerConfig) SetDefaults() {
	if c.Transport == "" {
		if c.Command != "" {
			c.Transport = MCPTransportStdio
		} else {
			c.Transport = MCPTransportStreamableHTTP
		}
	}
}

// Validate checks one server's configuration.
func (c *MCPServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}

	switch c.Transport {
	case MCPTransportStdio:
		if c.Command == "" {
			return fmt.Errorf("command is required for stdio transport")
		}
	case MCPTransportSSE, MCPTransportStreamableHTTP:
		if c.URL == "" {
			return fmt.Errorf("url is required for %s transport", c.Transport)
		}
	default:
		return fmt.Errorf("unknown transport %q (valid: stdio, sse, streamable-http)", c.Transport)
	}

	return nil
}
