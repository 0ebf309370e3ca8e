// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the blog admin tools for LLM integration via stdio
// transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/contentstore"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/postservice"
)

// Server wraps the MCP server with blog tools.
type Server struct {
	mcp       *server.MCPServer
	posts     *postservice.Service
	store     *contentstore.Client
	assetsDir string
}

// New creates a new MCP server with all blog tools registered.
func New(posts *postservice.Service, store *contentstore.Client, assetsDir string) *Server {
	s := &Server{posts: posts, store: store, assetsDir: assetsDir}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_posts",
		mcp.WithDescription("List all blog posts with their front-matter metadata."),
	), s.listPosts)

	s.mcp.AddTool(mcp.NewTool("read_post",
		mcp.WithDescription("Read the full source of a blog post, front matter included."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Post slug (filename without .md)")),
	), s.readPost)

	s.mcp.AddTool(mcp.NewTool("write_post",
		mcp.WithDescription("Create or update a blog post. Content MUST follow the canonical "+
			"post format (front-matter block with title, optional tags, Markdown body). "+
			"Read the contract first via the get_post_contract tool or the "+
			"ansuz://post-format resource."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Post slug (filename without .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full post source following the post format contract")),
	), s.writePost)

	s.mcp.AddTool(mcp.NewTool("get_post_contract",
		mcp.WithDescription("Returns the canonical post format contract. "+
			"Call this before creating or updating posts to ensure correct structure."),
	), s.getPostContract)

	s.mcp.AddTool(mcp.NewTool("upload_asset",
		mcp.WithDescription("Upload an image or document to the content repository's assets "+
			"directory from an HTTP(S) URL or a base64 data URI. Returns a markdownImage "+
			"field ready to paste into a post body."),
		mcp.WithString("url", mcp.Required(), mcp.Description("HTTP(S) URL or data: URI of the asset")),
		mcp.WithString("filename", mcp.Description("Optional target filename (derived from the URL when omitted)")),
	), s.uploadAsset)

	// Resource: post format contract.
	s.mcp.AddResource(
		mcp.NewResource("ansuz://post-format", "Post Format Contract",
			mcp.WithResourceDescription("Canonical post format that all blog posts must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPostFormatResource,
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

func (s *Server) listPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.posts.ListPosts(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := s.posts.GetPostRaw(ctx, slug)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", slug)), nil
	}
	return mcp.NewToolResultText(raw), nil
}

func (s *Server) writePost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !strings.HasPrefix(content, "---") {
		return mcp.NewToolResultError("content must start with a front-matter block; see get_post_contract"), nil
	}

	doc := frontmatter.Parse(content)
	post, err := s.posts.UpdatePost(ctx, slug, doc.Meta, doc.Body, postservice.RequestInfo{
		Email: "mcp",
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("written: %s (sha %s)", slug, post.SHA)), nil
}

func (s *Server) getPostContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PostFormatContract), nil
}

func (s *Server) readPostFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "ansuz://post-format",
			MIMEType: "text/markdown",
			Text:     PostFormatContract,
		},
	}, nil
}
