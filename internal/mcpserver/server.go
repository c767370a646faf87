// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes pagetree export tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/pagetree/internal/apperr"
	"github.com/starford/pagetree/internal/exportservice"
)

// CSVFormatURI is the resource URI of the output format contract.
const CSVFormatURI = "pagetree://csv-format"

// Server wraps the MCP server with pagetree tools.
type Server struct {
	mcp *server.MCPServer
	svc *exportservice.Service
}

// New creates a new MCP server with all pagetree tools registered.
func New(svc *exportservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"pagetree",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_groups",
		mcp.WithDescription("List the top-level page groups of the latest export with their record counts."),
	), s.listGroups)

	s.mcp.AddTool(mcp.NewTool("get_group",
		mcp.WithDescription("Return one group and its descendant pages in breadth-first export order."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Group key (the normalized top-level page title)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of records to return (default 100)")),
		mcp.WithNumber("offset", mcp.Description("Number of records to skip")),
	), s.getGroup)

	s.mcp.AddTool(mcp.NewTool("search_pages",
		mcp.WithDescription("Search exported pages by title across all groups."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchPages)

	s.mcp.AddTool(mcp.NewTool("run_export",
		mcp.WithDescription("Re-export the input document into per-group CSV files. "+
			"Unchanged input is skipped unless force is set. See the "+CSVFormatURI+" resource for the output format."),
		mcp.WithBoolean("force", mcp.Description("Export even if the input checksum is unchanged")),
	), s.runExport)

	s.mcp.AddResource(
		mcp.NewResource(CSVFormatURI, "CSV Output Format",
			mcp.WithResourceDescription("Layout and ordering rules of the per-group CSV files."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readCSVFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listGroups(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	groups, err := s.svc.ListGroups(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(groups)
}

func (s *Server) getGroup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.GetGroup(ctx, key, req.GetInt("limit", 100), req.GetInt("offset", 0))
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("group not found: %s", key)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(detail)
}

func (s *Server) searchPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no pages found"), nil
	}
	return jsonResult(results)
}

func (s *Server) runExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sum, err := s.svc.Export(ctx, req.GetBool("force", false))
	if sum == nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out := map[string]any{
		"input":    sum.Input,
		"checksum": sum.Checksum,
		"skipped":  sum.Skipped,
	}
	if sum.Report != nil {
		out["status"] = sum.Status
		out["groups"] = len(sum.Report.Groups)
		out["records"] = sum.Report.RecordCount()
	}
	if err != nil {
		out["error"] = err.Error()
	}
	return jsonResult(out)
}

func (s *Server) readCSVFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      CSVFormatURI,
			MIMEType: "text/markdown",
			Text:     CSVFormatContract,
		},
	}, nil
}
