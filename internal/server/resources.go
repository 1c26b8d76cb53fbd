package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/yosida95/uritemplate/v3"

	"github.com/opencode-dev/kernel/internal/memindex"
	"github.com/opencode-dev/kernel/internal/search"
)

// memoryURITemplate addresses one memory artifact (optionally one of its
// anchors) the way MCP resource URIs are conventionally shaped: a scheme,
// then a path built from the entity's natural keys (spec §3.6 spec_folder
// + id, §6.5 anchor ids).
var memoryURITemplate = uritemplate.MustNew("memory://{spec_folder}/{id}{/anchor}")

// memoryResourceURI expands the template into a concrete URI for one
// search or load result, used to annotate tool output so a host can
// re-address the same memory (and optionally one of its anchors)
// without re-running a search.
func memoryResourceURI(specFolder string, id int64, anchor string) string {
	values := uritemplate.Values{}
	values.Set("spec_folder", uritemplate.String(specFolder))
	values.Set("id", uritemplate.String(strconv.FormatInt(id, 10)))
	if anchor != "" {
		values.Set("anchor", uritemplate.String(anchor))
	}
	return memoryURITemplate.Expand(values)
}

// registerMemoryResource registers the memory:// scheme as an MCP
// resource template so the URIs tools.go embeds in its output
// (memoryResourceURI) are addressable, not just descriptive text (spec
// §3.6 spec_folder + id, §6.5 anchor ids).
func registerMemoryResource(s *mcpserver.MCPServer, idx *memindex.Store) {
	template := mcp.NewResourceTemplate(
		"memory://{spec_folder}/{id}{/anchor}",
		"Memory artifact",
		mcp.WithTemplateDescription("One indexed memory artifact, optionally scoped to a single anchor section"),
		mcp.WithTemplateMIMEType("text/markdown"),
	)
	s.AddResourceTemplate(template, memoryResourceHandler(idx))
}

// parseMemoryURI splits a "memory://{spec_folder}/{id}[/{anchor}]" URI
// into its parts. It is a fixed-shape parse rather than a uritemplate
// match because every memory:// URI in this system is generated
// exclusively by memoryResourceURI, so the shape is never in question.
func parseMemoryURI(uri string) (specFolder string, id int64, anchor string, err error) {
	rest := strings.TrimPrefix(uri, "memory://")
	if rest == uri {
		return "", 0, "", fmt.Errorf("not a memory:// uri: %q", uri)
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 {
		return "", 0, "", fmt.Errorf("malformed memory uri: %q", uri)
	}
	id, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, "", fmt.Errorf("malformed memory id in %q: %w", uri, err)
	}
	if len(parts) == 3 {
		anchor = parts[2]
	}
	return parts[0], id, anchor, nil
}

// memoryResourceHandler resolves a memory:// URI to its full content,
// or to one anchor section via the same fallback chain (exact id,
// canonical substring, header alias) the memory_load tool's anchor
// argument would use.
func memoryResourceHandler(idx *memindex.Store) mcpserver.ResourceTemplateHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		_, id, anchor, err := parseMemoryURI(req.Params.URI)
		if err != nil {
			return nil, err
		}

		m, err := idx.Get(id)
		if err != nil {
			return nil, fmt.Errorf("memory %d not found: %w", id, err)
		}

		text := m.Content
		if anchor != "" {
			result := search.Extract(m, anchor)
			if !result.Found {
				return nil, fmt.Errorf("anchor %q not found in memory %d", anchor, id)
			}
			text = result.Section
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/markdown",
				Text:     text,
			},
		}, nil
	}
}
