// Package mcpserver exposes the travel tool registry to external MCP clients.
//
// Every advertised tool, configured or not, is listed with its JSON schema.
// Calls run through the same [tool.Executor] the agent uses, so argument
// validation, fallbacks and the result cache apply unchanged. A failed call
// is reported as an MCP tool error carrying {"error": reason} rather than as
// a protocol error.
package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/travelgenie/internal/observe"
	"github.com/MrWong99/travelgenie/internal/tool"
)

// DefaultPath is where [Server.Handler] is usually mounted.
const DefaultPath = "/mcp"

// Implementation name and version reported during the MCP handshake.
const (
	ImplementationName    = "travelgenie"
	ImplementationVersion = "1.0.0"
)

// Catalog lists the tools to expose. [*tool.Registry] implements it.
type Catalog interface {
	List() []tool.Descriptor
}

// Runner executes one tool call. [*tool.Executor] implements it.
type Runner interface {
	ExecuteOne(ctx context.Context, req tool.Request) tool.Result
}

// Server wraps an MCP server bound to the tool registry.
type Server struct {
	mcp    *mcpsdk.Server
	runner Runner
	tools  []string
}

// New builds a Server advertising every tool in catalog.
func New(catalog Catalog, runner Runner) *Server {
	s := &Server{
		mcp: mcpsdk.NewServer(&mcpsdk.Implementation{
			Name:    ImplementationName,
			Version: ImplementationVersion,
		}, nil),
		runner: runner,
	}
	for _, d := range catalog.List() {
		s.mcp.AddTool(&mcpsdk.Tool{
			Name:        d.Name(),
			Description: d.Definition.Description,
			InputSchema: inputSchema(d.Definition.Parameters),
		}, s.handle(d.Name()))
		s.tools = append(s.tools, d.Name())
	}
	return s
}

// Tools returns the names of the exposed tools in registry order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// MCP returns the underlying SDK server, e.g. to connect a custom transport.
func (s *Server) MCP() *mcpsdk.Server { return s.mcp }

// Handler returns a streamable HTTP handler serving the MCP endpoint.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s.mcp
	}, nil)
}

func (s *Server) handle(name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args json.RawMessage
		if req.Params != nil {
			args = req.Params.Arguments
		}
		res := s.runner.ExecuteOne(ctx, tool.Request{
			ID:        "mcp_" + uuid.NewString(),
			Name:      name,
			Arguments: args,
		})
		if !res.Outcome.OK() {
			observe.Logger(ctx).Debug("mcp: tool call failed", "tool", name, "reason", res.Outcome.Reason())
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: res.Outcome.Text()}},
			IsError: !res.Outcome.OK(),
		}, nil
	}
}

// inputSchema returns params, or an empty object schema when params is nil.
// The SDK requires an object-typed schema for every tool.
func inputSchema(params map[string]any) map[string]any {
	if len(params) == 0 {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	if _, ok := params["type"]; !ok {
		out := make(map[string]any, len(params)+1)
		for k, v := range params {
			out[k] = v
		}
		out["type"] = "object"
		return out
	}
	return params
}
