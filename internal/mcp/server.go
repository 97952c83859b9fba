// Package mcp exposes the governance core as MCP tools over stdio, so
// agent runtimes can check, execute, enqueue, and escalate through one
// transport.
package mcp

import (
	"context"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/avoronkov/warden/internal/cmdcheck"
	"github.com/avoronkov/warden/internal/dirperm"
	"github.com/avoronkov/warden/internal/escalate"
	"github.com/avoronkov/warden/internal/governance"
	"github.com/avoronkov/warden/internal/identity"
	"github.com/avoronkov/warden/internal/queue"
	"github.com/avoronkov/warden/internal/shell"
)

// Deps are the wired services the tools delegate to.
type Deps struct {
	Registry identity.Registry
	Gov      *governance.Service
	Shell    *shell.Service
	Dirs     *dirperm.Service
	Queue    *queue.Queue
	Escalate *escalate.Workflow
}

// Server wraps the MCP SDK server around the governance services.
type Server struct {
	mcpServer *mcpsdk.Server
	deps      Deps
	mu        sync.Mutex
}

// New creates the MCP server and registers all tools.
func New(deps Deps) *Server {
	s := &Server{deps: deps}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "warden",
			Version: "0.1.0",
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// ReloadRules swaps the command validator on the shell service. Wired
// to the config hot-reloader.
func (s *Server) ReloadRules(rules *cmdcheck.Validator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deps.Shell.SetRules(rules)
}

// registerTools adds all warden tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_check",
		Description: "Check whether an agent may perform an action type at a given complexity, without executing anything.",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_exec",
		Description: "Execute a shell command through warden governance. Refused commands return the denial reason.",
	}, s.handleExec)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_dir_check",
		Description: "Check whether an agent may operate in a directory. The path is canonicalized before checking.",
	}, s.handleDirCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_enqueue",
		Description: "Enqueue work for supervised execution instead of running it directly.",
	}, s.handleEnqueue)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_pending",
		Description: "List queue entries, optionally filtered by status.",
	}, s.handlePending)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "warden_resolve",
		Description: "Route a blocked trigger to its escalation path (supervision or training).",
	}, s.handleResolve)
}
