package mcp

import (
	"context"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/docproc-mcp/internal/export"
	"github.com/dshills/docproc-mcp/internal/llm"
	"github.com/dshills/docproc-mcp/internal/metrics"
	"github.com/dshills/docproc-mcp/internal/pipeline"
	"github.com/dshills/docproc-mcp/internal/registry"
	"github.com/dshills/docproc-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "docproc-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultTimeout bounds one process tool call
	DefaultTimeout = 300 * time.Second
	// healthTimeout bounds the LLM probe in health_check
	healthTimeout = 5 * time.Second
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp       *server.MCPServer
	pipeline  *pipeline.Pipeline
	registry  *registry.Registry
	gen       llm.Generator
	store     storage.Storage // nil when persistence is disabled
	metrics   *metrics.Collector
	exporter  *export.Exporter
	exporting tryLock
	logger    *slog.Logger
	timeout   time.Duration
}

// Option configures a Server
type Option func(*Server)

// WithMetrics exposes a collector through get_metrics and health_check
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTimeout bounds each process tool call
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewServer creates a new MCP server over a configured pipeline
func NewServer(p *pipeline.Pipeline, opts ...Option) *Server {
	s := &Server{
		pipeline: p,
		registry: p.Registry(),
		gen:      p.Generator(),
		store:    p.Store(),
		logger:   slog.Default(),
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.exporter = export.New(s.logger)

	s.mcp = server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()
	return s
}

// MCPServer exposes the underlying protocol server
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// Serve runs the MCP protocol over stdio until ctx is canceled or stdin
// closes. The caller owns the store.
func (s *Server) Serve(ctx context.Context, stdin io.Reader, stdout io.Writer, stderr io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(log.New(stderr, "", log.LstdFlags))

	s.logger.Info("mcp.serve.start", "name", ServerName, "version", ServerVersion, "processors", s.registry.Len())
	err := stdio.Listen(ctx, stdin, stdout)
	if ctx.Err() != nil {
		err = nil
	}
	s.logger.Info("mcp.serve.stop", "error", err)
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(processDocumentTextTool(), s.handleProcessDocumentText)
	s.mcp.AddTool(processDocumentFileTool(), s.handleProcessDocumentFile)
	s.mcp.AddTool(classifyDocumentTypeTool(), s.handleClassifyDocumentType)
	s.mcp.AddTool(getMetricsTool(), s.handleGetMetrics)
	s.mcp.AddTool(healthCheckTool(), s.handleHealthCheck)
	s.mcp.AddTool(listDocumentTypesTool(), s.handleListDocumentTypes)
	s.mcp.AddTool(getDocumentResultTool(), s.handleGetDocumentResult)
	s.mcp.AddTool(exportResultsTool(), s.handleExportResults)
}
