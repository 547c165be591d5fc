package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/prismrun/prism/internal/perr"
	"github.com/prismrun/prism/pkg/types"
)

const (
	defaultMaxTurns          = 20
	defaultContextTokenLimit = 150000
)

// providerEnvVar maps a provider id to the environment variable its API
// key is read from when config.json doesn't set one directly.
var providerEnvVar = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"ark":       "ARK_API_KEY",
}

// Load builds the resolved Config from, in priority order: the global
// ${HOME}/.prism/config.json (or config.yaml), a project-local
// .prism/config.json override, and environment variables (an API key from
// the environment fills in only a provider whose key no file sets). It
// fails fast if the resolved model's provider has no API key.
func Load(projectDir string) (*types.Config, error) {
	paths := GetPaths()

	if err := godotenv.Load(paths.EnvFile); err != nil && !os.IsNotExist(err) {
		return nil, perr.Wrap(perr.Configuration, "loading .env", err)
	}

	cfg := defaultConfig()

	if err := mergeJSONFile(cfg, paths.ConfigJSON); err != nil {
		return nil, err
	}
	if err := mergeYAMLFile(cfg, paths.ConfigYAML); err != nil {
		return nil, err
	}
	if projectDir != "" {
		if err := mergeJSONFile(cfg, ProjectConfigPath(projectDir)); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if prompt, err := os.ReadFile(paths.SystemPrompt); err == nil {
		cfg.SystemPrompt = string(prompt)
	} else if !os.IsNotExist(err) {
		return nil, perr.Wrap(perr.Configuration, "reading system prompt", err)
	}

	if err := validateProviderKey(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *types.Config {
	return &types.Config{
		Provider:          make(map[string]types.ProviderConfig),
		Tools:             make(map[string]types.ToolConfig),
		Agent:             make(map[string]types.AgentConfig),
		MCP:               make(map[string]types.MCPConfig),
		MaxTurns:          defaultMaxTurns,
		ContextTokenLimit: defaultContextTokenLimit,
	}
}

func mergeJSONFile(target *types.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return perr.Wrap(perr.Configuration, "reading "+path, err)
	}

	var fragment types.Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &fragment); err != nil {
		return perr.Wrap(perr.Configuration, "parsing "+path, err)
	}
	mergeConfig(target, &fragment)
	return nil
}

func mergeYAMLFile(target *types.Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return perr.Wrap(perr.Configuration, "reading "+path, err)
	}

	var fragment types.Config
	if err := yaml.Unmarshal(data, &fragment); err != nil {
		return perr.Wrap(perr.Configuration, "parsing "+path, err)
	}
	mergeConfig(target, &fragment)
	return nil
}

// mergeConfig overlays source onto target: scalars overwrite, maps merge
// key-by-key so a later, more specific file only needs to declare the
// fields it actually changes.
func mergeConfig(target, source *types.Config) {
	if source.Model != "" {
		target.Model = source.Model
	}
	if source.SmallModel != "" {
		target.SmallModel = source.SmallModel
	}
	if source.MaxTurns != 0 {
		target.MaxTurns = source.MaxTurns
	}
	if source.ContextTokenLimit != 0 {
		target.ContextTokenLimit = source.ContextTokenLimit
	}

	for k, v := range source.Provider {
		target.Provider[k] = v
	}
	for k, v := range source.Tools {
		target.Tools[k] = v
	}
	for k, v := range source.Agent {
		target.Agent[k] = v
	}
	for k, v := range source.MCP {
		target.MCP[k] = v
	}
}

func applyEnvOverrides(cfg *types.Config) {
	for provider, envVar := range providerEnvVar {
		apiKey := os.Getenv(envVar)
		if apiKey == "" {
			continue
		}
		p := cfg.Provider[provider]
		if p.APIKey == "" {
			p.APIKey = apiKey
			cfg.Provider[provider] = p
		}
	}

	if model := os.Getenv("PRISM_MODEL"); model != "" {
		cfg.Model = model
	}
	if smallModel := os.Getenv("PRISM_SMALL_MODEL"); smallModel != "" {
		cfg.SmallModel = smallModel
	}
}

// validateProviderKey fails fast if the resolved model's provider has no
// API key and isn't routed through Bedrock (which uses AWS credentials
// instead of a bearer key).
func validateProviderKey(cfg *types.Config) error {
	if cfg.Model == "" {
		return perr.New(perr.Configuration, "no model configured")
	}

	providerID, _, found := strings.Cut(cfg.Model, "/")
	if !found {
		return perr.New(perr.Configuration, fmt.Sprintf("model %q must be \"provider/model\"", cfg.Model))
	}

	p, ok := cfg.Provider[providerID]
	if !ok || (p.APIKey == "" && !p.UseBedrock) {
		return perr.New(perr.Configuration, fmt.Sprintf("provider %q has no API key configured", providerID)).
			WithDetails(map[string]any{"provider": providerID})
	}
	return nil
}

// Watcher hot-reloads config.json/config.yaml/system.md for new sessions.
// Sessions already in flight keep the snapshot they started with; only
// Current() observes the update.
type Watcher struct {
	projectDir string
	current    atomic.Pointer[types.Config]
	watcher    *fsnotify.Watcher
	mu         sync.Mutex
	onError    func(error)
}

// NewWatcher loads the initial config and starts watching the files that
// fed it. onError, if non-nil, receives reload failures (the previous
// good config is kept on a reload failure).
func NewWatcher(projectDir string, onError func(error)) (*Watcher, error) {
	cfg, err := Load(projectDir)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, perr.Wrap(perr.Internal, "starting config watcher", err)
	}

	w := &Watcher{projectDir: projectDir, watcher: fsw, onError: onError}
	w.current.Store(cfg)

	paths := GetPaths()
	for _, p := range []string{paths.ConfigJSON, paths.ConfigYAML, paths.SystemPrompt} {
		_ = fsw.Add(p) // best-effort: a file that doesn't exist yet simply isn't watched
	}
	if projectDir != "" {
		_ = fsw.Add(ProjectConfigPath(projectDir))
	}

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	cfg, err := Load(w.projectDir)
	if err != nil {
		if w.onError != nil {
			w.onError(err)
		}
		return
	}
	w.current.Store(cfg)
}

// Current returns the most recently loaded config snapshot.
func (w *Watcher) Current() *types.Config {
	return w.current.Load()
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Save writes a config to path as indented JSON.
func Save(cfg *types.Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return perr.Wrap(perr.Internal, "marshaling config", err)
	}
	return os.WriteFile(path, data, 0o644)
}
