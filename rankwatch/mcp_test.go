package rankwatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/rankcap/rankwatch/ranking"
)

var testMCPImpl = &mcp.Implementation{Name: "rankwatch-test", Version: "0.1.0"}

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCall(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err, name)
	require.NotEmpty(t, res.Content, name)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, name)
	return tc.Text, res.IsError
}

func TestMCP_ToolsListed(t *testing.T) {
	svc, _ := newTestService(t)
	session := mcpSession(t, svc)

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"rankwatch_list_sources", "rankwatch_collect", "rankwatch_list_snapshots",
		"rankwatch_get_snapshot", "rankwatch_latest",
	}, names)
}

func TestMCP_CollectListGet(t *testing.T) {
	svc, _ := newTestService(t)
	session := mcpSession(t, svc)

	text, isErr := mcpCall(t, session, "rankwatch_collect", map[string]any{"source": "OLIVEYOUNG_KR"})
	require.False(t, isErr, text)
	var snap ranking.Snapshot
	require.NoError(t, json.Unmarshal([]byte(text), &snap))
	assert.Equal(t, ranking.StatusSuccess, snap.Status)
	assert.Len(t, snap.Items, 2)

	text, isErr = mcpCall(t, session, "rankwatch_collect", map[string]any{"source": "BLOCKED_KR"})
	require.False(t, isErr, text)

	text, isErr = mcpCall(t, session, "rankwatch_list_snapshots", map[string]any{"status": "SUCCESS"})
	require.False(t, isErr, text)
	var list []ranking.Snapshot
	require.NoError(t, json.Unmarshal([]byte(text), &list))
	require.Len(t, list, 1)
	assert.Equal(t, snap.ID, list[0].ID)

	text, isErr = mcpCall(t, session, "rankwatch_get_snapshot", map[string]any{"id": snap.ID})
	require.False(t, isErr, text)
	var got ranking.Snapshot
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.Equal(t, "Dokdo Toner", got.Items[0].Product)

	text, isErr = mcpCall(t, session, "rankwatch_latest", map[string]any{"source": "OLIVEYOUNG_KR"})
	require.False(t, isErr, text)
}

func TestMCP_Errors(t *testing.T) {
	svc, _ := newTestService(t)
	session := mcpSession(t, svc)

	_, isErr := mcpCall(t, session, "rankwatch_collect", map[string]any{"source": "NOPE"})
	assert.True(t, isErr)

	_, isErr = mcpCall(t, session, "rankwatch_collect", map[string]any{})
	assert.True(t, isErr)

	_, isErr = mcpCall(t, session, "rankwatch_get_snapshot", map[string]any{"id": 12345})
	assert.True(t, isErr)

	_, isErr = mcpCall(t, session, "rankwatch_list_snapshots", map[string]any{"status": "maybe"})
	assert.True(t, isErr)
}
