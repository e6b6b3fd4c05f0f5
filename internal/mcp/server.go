// ABOUTME: MCP server setup for the health ETL database.
// ABOUTME: Exposes read-only queries, analytics and single-file imports over stdio.
package mcp

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/healthetl/internal/importer"
	"github.com/harperreed/healthetl/internal/logging"
	"github.com/harperreed/healthetl/internal/query"
	"github.com/harperreed/healthetl/internal/storage"
)

// Options configures the server.
type Options struct {
	// UserID is the internal users.id that imports are attributed to.
	UserID int64

	// Importer configures single-file imports started from the import_file tool.
	Importer importer.Options

	Logger  *log.Logger
	Version string
}

// Server wraps the MCP server with database access.
type Server struct {
	mcpServer *mcp.Server
	db        *storage.DB
	schema    *storage.SchemaManager
	q         *query.Querier
	opts      Options
	logger    *log.Logger
}

// NewServer creates a new MCP server over an initialized database.
func NewServer(db *storage.DB, opts Options) (*Server, error) {
	if db == nil {
		return nil, fmt.Errorf("new server: nil database")
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	logger := logging.OrDiscard(opts.Logger)

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "healthetl",
			Version: opts.Version,
		},
		nil,
	)

	s := &Server{
		mcpServer: mcpServer,
		db:        db,
		schema:    storage.NewSchemaManager(db, logger),
		q:         query.New(db.SQL()),
		opts:      opts,
		logger:    logger,
	}

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Serve starts the MCP server using stdio transport.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("serving MCP on stdio", "db", s.db.Path())
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}
