package session

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/prismrun/prism/pkg/types"
)

// SystemPrompt builds the system prompt the Agent Loop prepends to every
// completion request, assembled from the session's resolved AgentProfile
// rather than a config-time agent definition — the profile is all a
// Session carries at runtime, per pkg/types' design.
type SystemPrompt struct {
	session    *types.Session
	profile    *types.AgentProfile
	providerID string
	modelID    string
}

// NewSystemPrompt creates a prompt builder for one turn.
func NewSystemPrompt(session *types.Session, profile *types.AgentProfile, providerID, modelID string) *SystemPrompt {
	return &SystemPrompt{session: session, profile: profile, providerID: providerID, modelID: modelID}
}

// Build constructs the complete system prompt.
func (s *SystemPrompt) Build() string {
	var parts []string

	if header := s.providerHeader(); header != "" {
		parts = append(parts, header)
	}
	if modePrompt := s.modePrompt(); modePrompt != "" {
		parts = append(parts, modePrompt)
	}
	parts = append(parts, s.environmentContext())
	if rules := s.loadCustomRules(); rules != "" {
		parts = append(parts, rules)
	}
	if toolInstructions := s.toolInstructions(); toolInstructions != "" {
		parts = append(parts, toolInstructions)
	}

	return strings.Join(parts, "\n\n")
}

// providerHeader returns the provider-specific system header.
func (s *SystemPrompt) providerHeader() string {
	switch s.providerID {
	case "anthropic":
		return `You are Claude, an AI assistant made by Anthropic, acting as a code review agent. You are helpful, harmless, and honest.

IMPORTANT: You have access to tools that can read, write, and execute commands against the user's project. Use them responsibly.`
	default:
		return `You are a helpful AI assistant acting as a code review agent, with access to tools for reading, writing, and executing commands against the user's project.

Use tools responsibly and follow user instructions carefully.`
	}
}

// modePrompt describes the agent's operating mode and tool scope.
func (s *SystemPrompt) modePrompt() string {
	if s.profile == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are operating as the %q agent profile.\n", s.profile.Name)

	switch s.profile.Mode {
	case types.ModePrimary:
		b.WriteString("You are the primary agent driving this conversation; you may delegate focused subtasks to subagents via the task tool.")
	case types.ModeSubagent:
		b.WriteString("You are a subagent invoked to complete one focused subtask; report your findings concisely and return control.")
	case types.ModeAll:
		b.WriteString("You may act as either a primary agent or a subagent depending on how you were invoked.")
	}

	if len(s.profile.ToolPatterns) > 0 {
		fmt.Fprintf(&b, "\nYour tool access is scoped to: %s.", strings.Join(s.profile.ToolPatterns, ", "))
	}

	return b.String()
}

// environmentContext describes the working directory and platform.
func (s *SystemPrompt) environmentContext() string {
	var b strings.Builder
	b.WriteString("# Environment Information\n\n")

	cwd := "."
	if s.session != nil {
		cwd = s.session.ProjectRoot
	}
	fmt.Fprintf(&b, "Working Directory: %s\n", cwd)
	fmt.Fprintf(&b, "Platform: %s\n", runtime.GOOS)
	fmt.Fprintf(&b, "Date: %s\n", time.Now().Format("2006-01-02"))

	if gitRoot := s.gitInfo(cwd); gitRoot != "" {
		fmt.Fprintf(&b, "Git Branch: %s\n", gitRoot)
	}

	return b.String()
}

// gitInfo returns the repository's current branch, or "" outside a repo.
func (s *SystemPrompt) gitInfo(cwd string) string {
	if cwd == "" {
		return ""
	}
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = cwd
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// loadCustomRules reads a project-local AGENTS.md or CLAUDE.md, if present.
func (s *SystemPrompt) loadCustomRules() string {
	if s.session == nil {
		return ""
	}
	for _, name := range []string{"AGENTS.md", "CLAUDE.md"} {
		path := filepath.Join(s.session.ProjectRoot, name)
		data, err := os.ReadFile(path)
		if err == nil {
			return fmt.Sprintf("# Project Instructions (%s)\n\n%s", name, string(data))
		}
	}
	if s.session.CustomInstructions != "" {
		return "# Custom Instructions\n\n" + s.session.CustomInstructions
	}
	return ""
}

// toolInstructions explains the expected tool-usage conventions.
func (s *SystemPrompt) toolInstructions() string {
	return `# Tool Usage Guidelines

## File Operations

- Always read a file before editing it so your changes apply against its
  current contents.
- Prefer targeted edits over rewriting whole files.
- Never guess at a file's contents; use the read tool.

## Shell Commands

- Keep commands scoped to what the task needs.
- Prefer non-destructive commands; confirm before anything irreversible.

## General

- Use tools one purposeful step at a time rather than speculatively.
- Stop and report back once the user's request is satisfied.`
}
