package kit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Decoder turns a tool call's raw arguments into the request an Endpoint
// expects.
type Decoder func(*mcp.CallToolRequest) (any, error)

// RegisterMCPTool exposes endpoint as an MCP tool. Bad arguments and
// endpoint failures come back as tool errors the model can read; results
// are sent as one JSON text block.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode Decoder) {
	srv.AddTool(tool, func(ctx context.Context, call *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		req, err := decode(call)
		if err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}
		resp, err := endpoint(WithTransport(ctx, "mcp"), req)
		if err != nil {
			return toolError(err), nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return toolError(fmt.Errorf("encode result: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}

// DecodeJSON decodes arguments into a fresh *T. Missing arguments give
// the zero T.
func DecodeJSON[T any]() Decoder {
	return func(call *mcp.CallToolRequest) (any, error) {
		p := new(T)
		if len(call.Params.Arguments) > 0 {
			if err := json.Unmarshal(call.Params.Arguments, p); err != nil {
				return nil, err
			}
		}
		return p, nil
	}
}
