// Package mcpserver exposes the search pipeline as the llm_search MCP tool.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/FranksOps/llmsearch/internal/pipeline"
	"github.com/FranksOps/llmsearch/internal/scraper"
	"github.com/FranksOps/llmsearch/internal/serp"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const ToolName = "llm_search"

const toolDescription = `Search the web with Google via SerpApi and return the answer box and organic results as JSON.
Set crawl=true to also fetch each result page and attach its content as Markdown in text_content.
Use start to page through results (0, 10, 20, ...).`

// Searcher runs one search request.
type Searcher interface {
	Run(ctx context.Context, req pipeline.SearchRequest) (*serp.SearchResponse, error)
}

var _ Searcher = (*pipeline.Pipeline)(nil)

type Server struct {
	mcp      *server.MCPServer
	searcher Searcher
	logger   *slog.Logger
}

// New creates the MCP server and registers llm_search.
func New(name, version string, searcher Searcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp: server.NewMCPServer(
			name,
			version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		searcher: searcher,
		logger:   logger,
	}
	s.mcp.AddTool(searchTool(), s.handleSearch)
	return s
}

func searchTool() mcp.Tool {
	return mcp.NewTool(ToolName,
		mcp.WithDescription(toolDescription),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithString("location",
			mcp.Description("Location the search should originate from, e.g. \"Austin, Texas, United States\""),
		),
		mcp.WithNumber("start",
			mcp.Description("Result offset for pagination; 0 is the first page, 10 the second"),
			mcp.DefaultNumber(0),
			mcp.Min(0),
		),
		mcp.WithBoolean("crawl",
			mcp.Description("Fetch each result page and include its Markdown content"),
			mcp.DefaultBool(false),
		),
	)
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requestID := uuid.NewString()
	ctx = scraper.WithRequestID(ctx, requestID)
	logger := s.logger.With("request_id", requestID, "tool", ToolName)

	req, err := searchArgs(request.GetArguments())
	if err != nil {
		logger.Info("rejected tool call", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	start := time.Now()
	resp, err := s.searcher.Run(ctx, req)
	if err != nil {
		logger.Warn("tool call failed", "error", err, "duration", time.Since(start))
		return mcp.NewToolResultError(errorMessage(err)), nil
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("context: %w", err)
	}
	logger.Info("tool call completed",
		"results", len(resp.OrganicResults),
		"crawl", req.Crawl,
		"duration", time.Since(start),
	)
	return mcp.NewToolResultText(string(data)), nil
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrValidation):
		return err.Error()
	case errors.Is(err, serp.ErrAuth):
		return "search provider authentication failed: " + err.Error()
	case errors.Is(err, serp.ErrProvider):
		return "search provider error: " + err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "search canceled: " + err.Error()
	default:
		return err.Error()
	}
}

// ServeStdio serves MCP over in/out until ctx is done or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("serving MCP over stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

// ServeHTTP serves the streamable HTTP transport on addr until ctx is done.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpServer := server.NewStreamableHTTPServer(s.mcp)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving MCP over streamable HTTP", "addr", addr)
		errCh <- httpServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	}
}
