// Package inspect exposes read and maintenance tools over a message store
// through the Model Context Protocol.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/sbus/internal/router"
	"github.com/flemzord/sbus/internal/store"
	"github.com/flemzord/sbus/pkg/message"
)

const defaultMessageLimit = 20

// Inspector serves the store inspection tools.
type Inspector struct {
	store   *store.SimpleMessageStore[string]
	routers *router.Registry
	server  *server.MCPServer
}

// New creates an Inspector over st. routers may be nil, in which case the
// route preview tool is not offered.
func New(st *store.SimpleMessageStore[string], routers *router.Registry, version string) *Inspector {
	i := &Inspector{
		store:   st,
		routers: routers,
		server:  server.NewMCPServer("sbus", version, server.WithToolCapabilities(false)),
	}

	i.server.AddTool(mcp.NewTool("list_groups",
		mcp.WithDescription("List message groups with their size, completion state and timestamps."),
	), i.listGroups)

	i.server.AddTool(mcp.NewTool("get_group",
		mcp.WithDescription("Show one message group and its oldest messages."),
		mcp.WithString("group_id", mcp.Required(), mcp.Description("Group identifier.")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of messages to return (default 20).")),
	), i.getGroup)

	i.server.AddTool(mcp.NewTool("poll_group",
		mcp.WithDescription("Remove and return the oldest message of a group."),
		mcp.WithString("group_id", mcp.Required(), mcp.Description("Group identifier.")),
	), i.pollGroup)

	i.server.AddTool(mcp.NewTool("store_stats",
		mcp.WithDescription("Report store occupancy and capacity."),
	), i.storeStats)

	if routers != nil {
		i.server.AddTool(mcp.NewTool("resolve_route",
			mcp.WithDescription("Preview the channels a router would send a message to."),
			mcp.WithString("router", mcp.Required(), mcp.Description("Router name.")),
			mcp.WithString("payload", mcp.Description("Message payload as JSON.")),
			mcp.WithObject("headers", mcp.Description("Message headers.")),
		), i.resolveRoute)
	}
	return i
}

// Server returns the underlying MCP server.
func (i *Inspector) Server() *server.MCPServer { return i.server }

// Handler returns the streamable HTTP transport for the tools.
func (i *Inspector) Handler() http.Handler {
	return server.NewStreamableHTTPServer(i.server)
}

func (i *Inspector) listGroups(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	groups := i.store.Groups()
	out := make([]store.GroupMetadata[string], 0, len(groups))
	for _, g := range groups {
		out = append(out, g.Metadata())
	}
	return jsonResult(out)
}

type groupView struct {
	store.GroupMetadata[string]
	Messages []message.Message `json:"messages"`
}

func (i *Inspector) getGroup(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("group_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", defaultMessageLimit)

	meta, err := i.store.GroupMetadata(id)
	if errors.Is(err, store.ErrGroupNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("group %q not found", id)), nil
	}
	if err != nil {
		return nil, err
	}

	g, err := i.store.GetMessageGroup(context.Background(), id)
	if err != nil {
		return nil, err
	}
	msgs := g.Messages()
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return jsonResult(groupView{GroupMetadata: meta, Messages: msgs})
}

func (i *Inspector) pollGroup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("group_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msg, ok, err := i.store.PollMessageFromGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return mcp.NewToolResultText("group is empty"), nil
	}
	return jsonResult(msg)
}

func (i *Inspector) storeStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(i.store.Stats())
}

func (i *Inspector) resolveRoute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("router")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	r, ok := i.routers.Get(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("router %q not found", name)), nil
	}

	var payload any
	if raw := req.GetString("payload", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("payload is not valid JSON: %v", err)), nil
		}
	}
	headers := message.Headers{}
	if h, ok := req.GetArguments()["headers"].(map[string]any); ok {
		headers = h
	}

	names, err := r.ResolveChannelNames(ctx, message.New(payload, headers))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(names)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("inspect: encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
