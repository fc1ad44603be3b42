package operation

import (
	"context"
	"errors"
	"fmt"

	weathertool "github.com/bi-tools/weather-mcp/pkg/operation/weather"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ErrToolNotFound is returned by Registry.Call for names not in the catalog.
var ErrToolNotFound = errors.New("tool not found")

/*
Registry holds the fixed tool catalog and dispatches calls by tool name.

The same handlers back both the MCP endpoint (via Register) and the REST
tool surface (via Call), so the two transports cannot drift apart.
*/
type Registry struct {
	tools []server.ServerTool
}

/*
NewRegistry builds the catalog of weather tools backed by the given service.

Parameters:
  - svc: The weather lookup used by the tool handlers.

The catalog is fixed at construction: get_weather, compare_weather, and
get_weather_forecast.
*/
func NewRegistry(svc weathertool.Service) *Registry {
	tool := &Tool{}

	tool.RegisterRead(server.ServerTool{
		Tool:    weathertool.GetWeatherTool,
		Handler: weathertool.HandleGetWeather(svc),
	})
	tool.RegisterRead(server.ServerTool{
		Tool:    weathertool.CompareWeatherTool,
		Handler: weathertool.HandleCompareWeather(svc),
	})
	tool.RegisterRead(server.ServerTool{
		Tool:    weathertool.GetWeatherForecastTool,
		Handler: weathertool.HandleGetWeatherForecast(),
	})

	return &Registry{tools: tool.Tools()}
}

// Register adds every catalog tool to the given MCPServer instance.
func (r *Registry) Register(s *server.MCPServer) {
	s.AddTools(r.tools...)
}

// Descriptors returns the tool descriptors in registration order.
func (r *Registry) Descriptors() []mcp.Tool {
	descriptors := make([]mcp.Tool, 0, len(r.tools))
	for _, st := range r.tools {
		descriptors = append(descriptors, st.Tool)
	}
	return descriptors
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for _, st := range r.tools {
		names = append(names, st.Tool.Name)
	}
	return names
}

/*
Call invokes the named tool with the given arguments.

Parameters:
  - ctx: Request context passed through to the handler.
  - name: Tool name to dispatch on.
  - arguments: Raw tool arguments as decoded from the request body.

Returns ErrToolNotFound (wrapped with the name) when the name is not in the
catalog; otherwise the handler's result and error are returned as-is.
*/
func (r *Registry) Call(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	for _, st := range r.tools {
		if st.Tool.Name != name {
			continue
		}
		req := mcp.CallToolRequest{}
		req.Params.Name = name
		req.Params.Arguments = arguments
		return st.Handler(ctx, req)
	}
	return nil, fmt.Errorf("%w: '%s'", ErrToolNotFound, name)
}

/*
Tool manages collections of tools to be registered with an MCPServer.

Fields:
  - write: Stores all ServerTools registered as write operations.
  - read: Stores all ServerTools registered as read operations.
*/
type Tool struct {
	write []server.ServerTool
	read  []server.ServerTool
}

/*
RegisterWrite registers a ServerTool as a write operation.

Parameters:
  - s: The ServerTool instance to register.

This method appends the tool to the write slice, indicating it is a write-type operation.
*/
func (t *Tool) RegisterWrite(s server.ServerTool) {
	t.write = append(t.write, s)
}

/*
RegisterRead registers a ServerTool as a read operation.

Parameters:
  - s: The ServerTool instance to register.

This method appends the tool to the read slice, indicating it is a read-type operation.
*/
func (t *Tool) RegisterRead(s server.ServerTool) {
	t.read = append(t.read, s)
}

/*
Tools returns all registered ServerTools.

Returns:
  - []server.ServerTool: A slice containing all write and read tools, with write tools first followed by read tools.

This method combines all registered tools for convenient batch registration to the MCPServer.
*/
func (t *Tool) Tools() []server.ServerTool {
	tools := make([]server.ServerTool, 0, len(t.write)+len(t.read))
	tools = append(tools, t.write...)
	tools = append(tools, t.read...)
	return tools
}
