package rankwatch

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/rankcap/rankwatch/internal/kit"
)

// RegisterMCP registers all rankwatch tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerListSources(srv)
	svc.registerCollect(srv)
	svc.registerListSnapshots(srv)
	svc.registerGetSnapshot(srv)
	svc.registerLatest(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (svc *Service) tool(srv *mcp.Server, tool *mcp.Tool, ep kit.Endpoint, decode kit.Decoder) {
	kit.RegisterMCPTool(srv, tool, kit.Logging(svc.logger, tool.Name)(ep), decode)
}

func (svc *Service) registerListSources(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "rankwatch_list_sources",
		Description: "List configured ranking sources with their resolved URL and UTC offset",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	svc.tool(srv, tool, func(context.Context, any) (any, error) {
		return svc.sourceViews(), nil
	}, kit.DecodeJSON[req]())
}

func (svc *Service) registerCollect(srv *mcp.Server) {
	type req struct {
		Source string `json:"source"`
	}

	tool := &mcp.Tool{
		Name:        "rankwatch_collect",
		Description: "Capture a source's ranking page now and persist one snapshot (SUCCESS with items, or FAILED with the reason)",
		InputSchema: inputSchema(map[string]any{
			"source": map[string]any{"type": "string", "description": "Source id, e.g. OLIVEYOUNG_KR"},
		}, []string{"source"}),
	}

	svc.tool(srv, tool, func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if p.Source == "" {
			return nil, errors.New("source is required")
		}
		return svc.Collect(ctx, p.Source)
	}, kit.DecodeJSON[req]())
}

func (svc *Service) registerListSnapshots(srv *mcp.Server) {
	type req struct {
		Source string `json:"source"`
		Status string `json:"status"`
		Limit  int    `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "rankwatch_list_snapshots",
		Description: "List snapshots newest first, without items",
		InputSchema: inputSchema(map[string]any{
			"source": map[string]any{"type": "string", "description": "Filter by source id"},
			"status": map[string]any{"type": "string", "description": "SUCCESS or FAILED"},
			"limit":  map[string]any{"type": "integer", "description": "Max results (default 50, max 500)"},
		}, nil),
	}

	svc.tool(srv, tool, func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		status, err := parseStatus(p.Status)
		if err != nil {
			return nil, err
		}
		return svc.Snapshots(ctx, Filter{Source: p.Source, Status: status, Limit: p.Limit})
	}, kit.DecodeJSON[req]())
}

func (svc *Service) registerGetSnapshot(srv *mcp.Server) {
	type req struct {
		ID int64 `json:"id"`
	}

	tool := &mcp.Tool{
		Name:        "rankwatch_get_snapshot",
		Description: "Get one snapshot with its ranked items",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "integer", "description": "Snapshot id"},
		}, []string{"id"}),
	}

	svc.tool(srv, tool, func(ctx context.Context, r any) (any, error) {
		return svc.Snapshot(ctx, r.(*req).ID)
	}, kit.DecodeJSON[req]())
}

func (svc *Service) registerLatest(srv *mcp.Server) {
	type req struct {
		Source string `json:"source"`
	}

	tool := &mcp.Tool{
		Name:        "rankwatch_latest",
		Description: "Get the newest successful snapshot of a source with its items",
		InputSchema: inputSchema(map[string]any{
			"source": map[string]any{"type": "string", "description": "Source id"},
		}, []string{"source"}),
	}

	svc.tool(srv, tool, func(ctx context.Context, r any) (any, error) {
		return svc.LatestSuccess(ctx, r.(*req).Source)
	}, kit.DecodeJSON[req]())
}
