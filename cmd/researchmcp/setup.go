package main

import (
	"encoding/json"
	"fmt"
	"io"
)

// clientSetupSnippet is the MCP client config block clientSetups renders,
// matching the "mcpServers" shape every major MCP client (Claude Desktop,
// Claude Code, Cursor) reads from its own config file.
type clientSetupSnippet struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

// writeClientSetup prints a ready-to-paste MCP client config snippet for
// client to w, per spec.md §6's `--setup <client>` flag. No example repo in
// the corpus ships an MCP client config generator, so this follows the
// config shape documented by the MCP clients themselves rather than any
// teacher precedent — see DESIGN.md.
func writeClientSetup(client string, w io.Writer) error {
	switch client {
	case "claude-desktop", "claude-code", "cursor":
	default:
		return fmt.Errorf("unknown client %q (expected one of claude-desktop, claude-code, cursor)", client)
	}

	snippet := map[string]any{
		"mcpServers": map[string]clientSetupSnippet{
			"research-engine": {Command: "researchmcp", Args: []string{"--stdio"}},
		},
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snippet)
}
