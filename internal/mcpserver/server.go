// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes VaultLinks tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/vaultlinks/internal/apperr"
	"github.com/starford/vaultlinks/internal/links"
	"github.com/starford/vaultlinks/internal/models"
	"github.com/starford/vaultlinks/internal/session"
)

// ContractURI is the resource holding LinkContract.
const ContractURI = "vaultlinks://access-levels"

// Server wraps the MCP server with VaultLinks tools.
type Server struct {
	mcp    *server.MCPServer
	sess   *session.Session
	links  *links.Manager
	origin string
}

// New creates a new MCP server with all VaultLinks tools registered.
// origin is the app origin the identity provider redirects back to.
func New(sess *session.Session, mgr *links.Manager, origin, version string) *Server {
	s := &Server{sess: sess, links: mgr, origin: origin}

	s.mcp = server.NewMCPServer(
		"VaultLinks",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("whoami",
		mcp.WithDescription("Show the signed-in user, or report that nobody is signed in."),
	), s.whoami)

	s.mcp.AddTool(mcp.NewTool("login_url",
		mcp.WithDescription("Return the identity provider URL to sign in with. "+
			"After signing in, pass the returned URL to `vaultlinks callback`."),
		mcp.WithString("redirect", mcp.Description("Optional return URL (defaults to the app origin)")),
	), s.loginURL)

	s.mcp.AddTool(mcp.NewTool("list_links",
		mcp.WithDescription("List every vault link owned by the signed-in user."),
	), s.listLinks)

	s.mcp.AddTool(mcp.NewTool("create_link",
		mcp.WithDescription("Store a new shared-drive link. Read the "+ContractURI+" resource for the field contract."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Link URL (http:// or https://)")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
		mcp.WithString("access_level", mcp.Description("Restricted, Anyone with link or Public (default Restricted)")),
	), s.createLink)

	s.mcp.AddTool(mcp.NewTool("delete_link",
		mcp.WithDescription("Delete a vault link. Requires confirm=true."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Link id")),
		mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true to delete")),
	), s.deleteLink)

	s.mcp.AddTool(mcp.NewTool("open_link",
		mcp.WithDescription("Open a link in a new browser window on this machine."),
		mcp.WithString("url", mcp.Required(), mcp.Description("URL to open")),
	), s.openLink)

	s.mcp.AddResource(
		mcp.NewResource(ContractURI, "Link Contract",
			mcp.WithResourceDescription("Vault link fields and accepted access levels."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func errorResult(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrUnauthorized) {
		return mcp.NewToolResultError("not signed in: use login_url, then `vaultlinks callback <url>`")
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) whoami(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.sess.Snapshot()
	if !snap.Authenticated() {
		return mcp.NewToolResultText(fmt.Sprintf("not signed in (%s)", snap.State)), nil
	}
	return jsonResult(snap.User), nil
}

func (s *Server) loginURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	redirect := req.GetString("redirect", s.origin)
	return mcp.NewToolResultText(s.sess.LoginURL(redirect)), nil
}

func (s *Server) listLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.links.List(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(list), nil
}

func (s *Server) createLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := models.LinkInput{
		URL:         u,
		Name:        name,
		AccessLevel: models.AccessLevel(req.GetString("access_level", "")),
	}
	link, err := s.links.Create(ctx, in)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(link), nil
}

func (s *Server) deleteLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	confirm := req.GetBool("confirm", false)
	err = s.links.Delete(ctx, id, func(string) bool { return confirm })
	if errors.Is(err, links.ErrCancelled) {
		return mcp.NewToolResultError("not deleted: " + links.ConfirmDeleteMsg + " Pass confirm=true."), nil
	}
	if err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) openLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.links.Open(u); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("opened: %s", u)), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ContractURI,
			MIMEType: "text/markdown",
			Text:     LinkContract,
		},
	}, nil
}
