package types

// Config is the resolved runtime configuration, loaded by internal/config
// from ${HOME}/.prism/config.json (+ optional config.yaml), a project-local
// override, and environment variables, per SPEC_FULL.md §6.
type Config struct {
	Model      string `json:"model,omitempty"`      // "provider/model", e.g. "anthropic/claude-sonnet-4-20250514"
	SmallModel string `json:"smallModel,omitempty"` // used for cheap auxiliary calls (e.g. title generation)

	Provider map[string]ProviderConfig `json:"provider,omitempty"`
	Tools    map[string]ToolConfig     `json:"tools,omitempty"`
	Agent    map[string]AgentConfig    `json:"agent,omitempty"`
	MCP      map[string]MCPConfig      `json:"mcp,omitempty"`

	MaxTurns          int `json:"maxTurns,omitempty"`          // default 20, spec.md §5
	ContextTokenLimit int `json:"contextTokenLimit,omitempty"` // default 150000; compaction does not read it (it uses session.MaxContextTokens)

	SystemPrompt string `json:"-"` // loaded from system.md, not serialized back
}

// ProviderConfig configures one LLM provider backend.
type ProviderConfig struct {
	APIKey    string `json:"apiKey,omitempty"`
	BaseURL   string `json:"baseUrl,omitempty"`
	Model     string `json:"model,omitempty"` // endpoint id, for providers like Ark
	UseBedrock bool   `json:"useBedrock,omitempty"`
	Region    string `json:"region,omitempty"`
	Disabled  bool   `json:"disabled,omitempty"`
}

// ToolConfig is the Tool Scheduler's per-tool policy, per spec.md §3:
// "A mapping from tool name to {enabled flag, per-tool timeout, per-minute
// rate-limit budget, optional per-tool extra options}."
type ToolConfig struct {
	Enabled           bool           `json:"enabled"`
	Timeout           int            `json:"timeoutSeconds,omitempty"`  // 0 = use global default
	RateLimitPerMinute int           `json:"rateLimitPerMinute,omitempty"` // 0 = unlimited
	Options           map[string]any `json:"options,omitempty"`
}

// AgentConfig is the on-disk shape of an agent profile.
type AgentConfig struct {
	Mode                  string          `json:"mode,omitempty"` // "primary"|"subagent"|"all"
	ToolPatterns          []string        `json:"tools,omitempty"`
	DefaultPermission     string          `json:"permission,omitempty"` // "allow"|"deny"|"ask"
	RequiresConfirmation  map[string]bool `json:"requiresConfirmation,omitempty"`
}

// MCPConfig declares one external Model Context Protocol tool server.
type MCPConfig struct {
	Type        string            `json:"type,omitempty"` // "stdio"|"remote"
	Command     []string          `json:"command,omitempty"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	TimeoutMS   int               `json:"timeoutMs,omitempty"`
}

// AgentProfile is the runtime (resolved) form of AgentConfig, attached to
// a Session at creation time. Grounded on the teacher's internal/agent.Agent.
type AgentProfile struct {
	Name                 string
	Mode                 AgentMode
	ToolPatterns         []string // doublestar glob patterns matched against tool names
	DefaultPermission    Permission
	RequiresConfirmation map[string]bool
}

// AgentMode restricts which sessions a profile may be attached to.
type AgentMode string

const (
	ModePrimary  AgentMode = "primary"
	ModeSubagent AgentMode = "subagent"
	ModeAll      AgentMode = "all"
)

// Permission is the default confirmation policy for a modifying tool.
type Permission string

const (
	PermissionAllow Permission = "allow"
	PermissionDeny  Permission = "deny"
	PermissionAsk   Permission = "ask"
)
