// Package config loads, merges, and hot-reloads the runtime configuration.
//
// # Sources, in priority order
//
//  1. ${HOME}/.prism/config.json (JSONC comments supported via tidwall/jsonc)
//  2. ${HOME}/.prism/config.yaml, an alternate YAML format for the same schema
//  3. A project-local .prism/config.json override
//  4. Environment variables, with ${HOME}/.prism/.env loaded first via
//     joho/godotenv so a shell that never exported the key still works.
//     PRISM_MODEL and PRISM_SMALL_MODEL override the files; a provider
//     API key from the environment is used only when no file sets one.
//
// Load fails fast if the resolved model's provider has no API key and
// isn't routed through Bedrock.
//
// ${HOME}/.prism/system.md, if present, overrides the default system
// prompt.
//
// # Hot reload
//
// NewWatcher loads the initial config and then watches the files that fed
// it with fsnotify, refreshing an atomic snapshot on every write. Sessions
// already running keep the config they started with; only new sessions
// observe a reload.
package config
