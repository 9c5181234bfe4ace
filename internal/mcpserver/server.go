// Package mcpserver exposes an exported lineage document as read-only MCP
// tools, so assistants can browse models, columns and lineage.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tordrt/dbtlineage/internal/ctxlog"
	"github.com/tordrt/dbtlineage/internal/export"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// New creates an MCP server with all lineage tools registered.
func New(doc *export.Document, version string) *mcp.Server {
	lt := NewLineageTools(doc)

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "dbtlineage",
		Version: version,
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_projects",
		Description: "List the dbt projects in the lineage with their model counts",
	}, lt.ListProjects)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_models",
		Description: "List models, optionally filtered by project and a case-insensitive search over id and name",
	}, lt.ListModels)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_model",
		Description: "Get a model's columns with generated descriptions, its parents and its children",
	}, lt.GetModel)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_lineage",
		Description: "Get every model upstream and/or downstream of a model",
	}, lt.GetLineage)

	return srv
}

// Serve runs srv over transport until ctx is done. addr is used by the http transport only.
func Serve(ctx context.Context, srv *mcp.Server, transport, addr string) error {
	logger := ctxlog.Component(ctx, "mcpserver")

	switch transport {
	case TransportStdio:
		logger.Info("lineage MCP server starting", "transport", transport)
		return srv.Run(ctx, &mcp.StdioTransport{})
	case TransportHTTP:
		handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
			return srv
		}, nil)
		httpSrv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		logger.Info("lineage MCP server listening", "transport", transport, "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (use stdio or http)", transport)
	}
}
