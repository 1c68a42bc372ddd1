package worker

import (
	"context"

	"github.com/agentflow/core/manifest"
)

// loadTools merges m's statically registered tool set with any tools
// discovered from m's declared tool servers (§4.6 step 3). Tool-server
// failures degrade gracefully: the worker proceeds with whatever subset
// loaded, logging the failure rather than aborting.
func (e *Executor) loadTools(ctx context.Context, m *manifest.Manifest) []Tool {
	var tools []Tool

	if static, ok := e.Registry.ToolSet(string(m.ID)); ok {
		for _, t := range static {
			tools = append(tools, Tool{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.InputSchema,
				Execute:     t.Execute,
			})
		}
	}

	if e.ToolServer == nil || len(m.MCPServers) == 0 {
		return tools
	}

	servers := make(map[string]any, len(m.MCPServers))
	for name, raw := range m.MCPServers {
		servers[name] = raw
	}

	discovered, err := e.ToolServer.Connect(ctx, servers)
	if err != nil {
		if e.Logger != nil {
			e.Logger.Warn(ctx, "tool server discovery failed, proceeding without it", "agent", m.ID, "err", err)
		}
		return tools
	}
	return append(tools, discovered...)
}
