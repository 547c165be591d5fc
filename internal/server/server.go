// Package server exposes the review agent runtime over HTTP. The surface
// is deliberately small: POST /chat drives one turn of the Agent Loop and
// streams its events back as Server-Sent Events; GET /chat returns a
// session's current status. Every other concern (project browsing, file
// editing, TUI sync, formatter/command execution) belonged to the
// teacher's REST API and has no home here — this server only fronts the
// Session Manager and its Agent Loop.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/prismrun/prism/internal/agent"
	"github.com/prismrun/prism/internal/mcp"
	"github.com/prismrun/prism/internal/permission"
	"github.com/prismrun/prism/internal/provider"
	"github.com/prismrun/prism/internal/scheduler"
	"github.com/prismrun/prism/internal/session"
	"github.com/prismrun/prism/internal/tool"
	"github.com/prismrun/prism/pkg/types"
)

// Config holds server configuration.
type Config struct {
	Port         int
	Directory    string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// DefaultAgent names the agent.Registry profile new sessions get when
	// the caller doesn't request one explicitly.
	DefaultAgent string

	// SessionTTL bounds how long an idle session survives before the
	// Session Manager evicts it. 0 uses session.DefaultTTL.
	SessionTTL time.Duration

	// MaxTurns bounds a session's agentic loop. 0 uses session.DefaultMaxTurns.
	MaxTurns int
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		Directory:    "",
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout; /chat streams SSE indefinitely.
		DefaultAgent: "build",
	}
}

// Server is the HTTP server fronting the Session Manager.
type Server struct {
	config    *Config
	router    *chi.Mux
	httpSrv   *http.Server
	appConfig *types.Config

	manager   *session.Manager
	agentReg  *agent.Registry
	providers *provider.Registry
	tools     *tool.Registry
	mcpClient *mcp.Client
}

// New creates a Server wired to run turns through a fresh session.Manager.
// The caller owns providerReg/toolReg's lifetime; New constructs the
// Scheduler, permission Checker, DoomLoopDetector, and Agent Loop that sit
// between them and the Session Manager.
func New(cfg *Config, appConfig *types.Config, providerReg *provider.Registry, toolReg *tool.Registry) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var defaultProviderID, defaultModelID string
	if appConfig != nil && appConfig.Model != "" {
		parts := strings.SplitN(appConfig.Model, "/", 2)
		if len(parts) == 2 {
			defaultProviderID, defaultModelID = parts[0], parts[1]
		}
	}

	var toolConfig map[string]types.ToolConfig
	if appConfig != nil {
		toolConfig = appConfig.Tools
	}

	agentReg := agent.NewRegistry()
	perms := permission.NewChecker(nil)
	doomLoop := permission.NewDoomLoopDetector()
	sched := scheduler.New(toolReg, toolConfig)
	loop := session.NewLoop(providerReg, toolReg, sched, perms, doomLoop, defaultProviderID, defaultModelID)
	manager := session.NewManager(loop, cfg.SessionTTL)

	s := &Server{
		config:    cfg,
		router:    chi.NewRouter(),
		appConfig: appConfig,
		manager:   manager,
		agentReg:  agentReg,
		providers: providerReg,
		tools:     toolReg,
		mcpClient: mcp.NewClient(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// InitializeMCP connects every enabled MCP server named in appConfig and
// registers their tools into the shared tool.Registry, per SPEC_FULL.md's
// "MCP tool sources" supplement — MCP servers are a tool source feeding the
// Scheduler, not a surface of their own.
func (s *Server) InitializeMCP(ctx context.Context) error {
	if s.appConfig == nil || s.appConfig.MCP == nil {
		return nil
	}

	for name, cfg := range s.appConfig.MCP {
		enabled := cfg.Enabled == nil || *cfg.Enabled
		mcpCfg := &mcp.Config{
			Enabled:     enabled,
			Type:        mcp.TransportType(cfg.Type),
			URL:         cfg.URL,
			Headers:     cfg.Headers,
			Command:     cfg.Command,
			Environment: cfg.Environment,
			Timeout:     cfg.TimeoutMS,
		}
		if err := s.mcpClient.AddServer(ctx, name, mcpCfg); err != nil {
			continue
		}
	}

	mcp.RegisterMCPTools(s.mcpClient, s.tools)
	return nil
}

// CloseMCP closes all MCP server connections.
func (s *Server) CloseMCP() error {
	if s.mcpClient != nil {
		return s.mcpClient.Close()
	}
	return nil
}

// agentProfile resolves name (falling back to config's DefaultAgent, then
// "build") to a runtime AgentProfile via agent.Agent.ToProfile.
func (s *Server) agentProfile(name string) (*types.AgentProfile, error) {
	if name == "" {
		name = s.config.DefaultAgent
	}
	if name == "" {
		name = "build"
	}
	a, err := s.agentReg.Get(name)
	if err != nil {
		return nil, err
	}
	return a.ToProfile(), nil
}

// setupMiddleware configures middleware for the server, unchanged from the
// teacher beyond dropping the directory-from-query instance-context hook
// that existed to scope multi-project TUI sessions — /chat's request body
// carries its own directory instead.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server and its Session Manager.
func (s *Server) Shutdown(ctx context.Context) error {
	s.manager.Close()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
