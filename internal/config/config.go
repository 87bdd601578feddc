package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level configuration.
	WorkspaceDirName = ".browsercore"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
)

// WorkspaceOptions controls workspace discovery behavior.
type WorkspaceOptions struct {
	// Disable skips workspace discovery entirely (--no-workspace flag).
	Disable bool
	// ExplicitDir uses this directory as workspace root instead of walking up (--workspace-dir flag).
	ExplicitDir string
}

// Config captures all tunable settings for the engine and its front door.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Browser    BrowserConfig    `yaml:"browser"`
	Pool       PoolConfig       `yaml:"pool"`
	Session    SessionConfig    `yaml:"session"`
	Perception PerceptionConfig `yaml:"perception"`
	Tool       ToolConfig       `yaml:"tool"`
	Cache      CacheConfig      `yaml:"cache"`
	MCP        MCPConfig        `yaml:"mcp"`
	Mangle     MangleConfig     `yaml:"mangle"`
	Docker     DockerConfig     `yaml:"docker"`
	Advisor    AdvisorConfig    `yaml:"advisor"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`
}

// BrowserConfig configures how we attach to or launch Chrome for Rod.
type BrowserConfig struct {
	// Control endpoint for Rod (e.g., ws://localhost:9222). Required when launch is empty.
	DebuggerURL string `yaml:"debugger_url"`
	// Optional launch command to start Chrome in detached mode (e.g., ["chrome", "--remote-debugging-port=9222"]).
	Launch []string `yaml:"launch"`
	// AutoStart controls whether the server launches/attaches to Chrome at startup.
	AutoStart bool `yaml:"auto_start"`
	// Headless controls whether Chrome runs in headless mode (default: true).
	Headless *bool `yaml:"headless"`
	// Stealth launches handles through go-rod/stealth patches to reduce bot fingerprinting.
	Stealth bool `yaml:"stealth"`
	// Default navigation timeout (e.g., "15s").
	DefaultNavigationTimeout string `yaml:"default_navigation_timeout"`
	// Default timeout when attaching to an existing target (e.g., "10s").
	DefaultAttachTimeout string `yaml:"default_attach_timeout"`
	// Optional path to persist session metadata between server restarts.
	SessionStore string `yaml:"session_store"`
	// Enable DOM ingestion via JS snapshot (sampled to control cost).
	EnableDOMIngestion bool `yaml:"enable_dom_ingestion"`
	// Enable CDP network event ingestion (net_request/net_response/net_header
	// facts) for each session's page. Sampled the same way as DOM facts.
	EnableNetworkIngestion bool `yaml:"enable_network_ingestion"`
	// Viewport width for new sessions (default: 1920).
	ViewportWidth int `yaml:"viewport_width"`
	// Viewport height for new sessions (default: 1080).
	ViewportHeight int `yaml:"viewport_height"`
}

// PoolConfig sizes and paces the browser instance pool.
type PoolConfig struct {
	MinSize          int    `yaml:"min_size"`
	MaxSize          int    `yaml:"max_size"`
	CheckoutTimeout  string `yaml:"checkout_timeout"`
	LivenessInterval string `yaml:"liveness_interval"`
	MaxHandleAge     string `yaml:"max_handle_age"`
}

// SessionConfig bounds per-session resources.
type SessionConfig struct {
	IdleTimeout       string `yaml:"idle_timeout"`
	MaxConcurrent     int    `yaml:"max_concurrent"`
	DecisionTraceSize int    `yaml:"decision_trace_size"`
}

// PerceptionConfig tunes pipeline latency budgets and adaptive selection.
type PerceptionConfig struct {
	LightningBudget string `yaml:"lightning_budget_ms"`
	QuickBudget     string `yaml:"quick_budget_ms"`
	StandardBudget  string `yaml:"standard_budget_ms"`
	DeepBudget      string `yaml:"deep_budget_ms"`
	AdaptiveEnabled bool   `yaml:"adaptive_enabled"`
	// Tracing controls whether Perceive populates DecisionContext on its
	// result ("off" or "on"). Off by default since binding capture has a
	// small per-call cost.
	Tracing string `yaml:"tracing"`
}

// TracingEnabled reports whether decision tracing is turned on.
func (p PerceptionConfig) TracingEnabled() bool { return p.Tracing == "on" }

// ToolConfig governs retry/backoff/circuit-breaker policy for the registry.
type ToolConfig struct {
	DefaultRetryCount int    `yaml:"default_retry_count"`
	DefaultTimeout    string `yaml:"default_timeout"`
	BreakerThreshold  uint32 `yaml:"breaker_threshold"`
	BreakerCooldown   string `yaml:"breaker_cooldown"`
	VerifyByDefault   bool   `yaml:"verify_by_default"`
}

// CacheConfig sizes the two-tier unified cache.
type CacheConfig struct {
	InProcessSize int    `yaml:"in_process_size"`
	DefaultTTL    string `yaml:"default_ttl"`
	ExternalStore string `yaml:"external_store"`
}

// DockerConfig configures Docker log integration for full-stack error correlation.
type DockerConfig struct {
	// Enable Docker log integration (default: false).
	Enabled bool `yaml:"enabled"`
	// Containers to monitor for error correlation (e.g., ["backend", "frontend"]).
	Containers []string `yaml:"containers"`
	// How far back to query logs when correlating errors (e.g., "30s"). Default: 30s.
	LogWindow string `yaml:"log_window"`
	// Docker host (default: uses DOCKER_HOST env or unix socket).
	Host string `yaml:"host"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
}

// MangleConfig controls the embedded deductive engine.
type MangleConfig struct {
	Enable          bool   `yaml:"enable"`
	SchemaPath      string `yaml:"schema_path"`
	DisableBuiltin  bool   `yaml:"disable_builtin_rules"`
	FactBufferLimit int    `yaml:"fact_buffer_limit"`
}

// AdvisorConfig controls the optional LLM advisor boundary.
type AdvisorConfig struct {
	Enable bool   `yaml:"enable"`
	Model  string `yaml:"model"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enable bool   `yaml:"enable"`
	Addr   string `yaml:"addr"`
	Path   string `yaml:"path"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:     "browsercore",
			Version:  "0.1.0",
			LogFile:  "browsercore.log",
			LogLevel: "info",
		},
		Browser: BrowserConfig{
			AutoStart:                true,
			Stealth:                  true,
			DefaultNavigationTimeout: "15s",
			DefaultAttachTimeout:     "10s",
			SessionStore:             "sessions.json",
			EnableDOMIngestion:       true,
			EnableNetworkIngestion:   true,
			ViewportWidth:            1920,
			ViewportHeight:           1080,
		},
		Pool: PoolConfig{
			MinSize:          1,
			MaxSize:          6,
			CheckoutTimeout:  "10s",
			LivenessInterval: "30s",
			MaxHandleAge:     "30m",
		},
		Session: SessionConfig{
			IdleTimeout:       "15m",
			MaxConcurrent:     32,
			DecisionTraceSize: 500,
		},
		Perception: PerceptionConfig{
			LightningBudget: "50ms",
			QuickBudget:     "300ms",
			StandardBudget:  "1500ms",
			DeepBudget:      "6000ms",
			AdaptiveEnabled: true,
			Tracing:         "off",
		},
		Tool: ToolConfig{
			DefaultRetryCount: 2,
			DefaultTimeout:    "10s",
			BreakerThreshold:  5,
			BreakerCooldown:   "30s",
			VerifyByDefault:   true,
		},
		Cache: CacheConfig{
			InProcessSize: 2048,
			DefaultTTL:    "2m",
		},
		MCP: MCPConfig{
			SSEPort: 0,
		},
		Mangle: MangleConfig{
			Enable:          true,
			SchemaPath:      "schemas/decisions.mg",
			FactBufferLimit: 4096,
		},
		Docker: DockerConfig{
			Enabled:    false,
			Containers: []string{"backend", "frontend"},
			LogWindow:  "30s",
			Host:       "",
		},
		Advisor: AdvisorConfig{
			Enable: false,
			Model:  "claude-sonnet-4-5",
		},
		Metrics: MetricsConfig{
			Enable: true,
			Addr:   ":9090",
			Path:   "/metrics",
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .browsercore/config.yaml file.
// Returns the workspace root directory (parent of .browsercore/) or empty string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements multi-layer config merge:
//
//	DefaultConfig() <- .browsercore/config.yaml <- explicit --config <- CLI flags
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string, opts WorkspaceOptions) (Config, string, error) {
	cfg := DefaultConfig()
	wsDir := ""

	if !opts.Disable {
		var err error
		if opts.ExplicitDir != "" {
			candidate := filepath.Join(opts.ExplicitDir, WorkspaceDirName, WorkspaceConfigFile)
			if _, statErr := os.Stat(candidate); statErr == nil {
				wsDir = opts.ExplicitDir
			}
		} else {
			cwd, cwdErr := os.Getwd()
			if cwdErr != nil {
				return cfg, "", fmt.Errorf("getting working directory: %w", cwdErr)
			}
			wsDir, err = DiscoverWorkspace(cwd)
			if err != nil {
				return cfg, "", fmt.Errorf("discovering workspace: %w", err)
			}
		}

		if wsDir != "" {
			wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
			raw, err := os.ReadFile(wsConfigPath)
			if err != nil {
				return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
			}
			cfg = resolveWorkspacePaths(cfg, wsDir)
		}
	}

	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	return cfg, wsDir, cfg.Validate()
}

// InitWorkspace creates a .browsercore/ directory with template files at root.
func InitWorkspace(root string) error {
	wsDir := filepath.Join(root, WorkspaceDirName)

	if _, err := os.Stat(wsDir); err == nil {
		return fmt.Errorf("workspace directory already exists: %s", wsDir)
	}

	dirs := []string{
		wsDir,
		filepath.Join(wsDir, "schemas"),
		filepath.Join(wsDir, "data"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	templateConfig := `# browsercore project-level configuration
# Values here override defaults but are overridden by --config and CLI flags.

# docker:
#   enabled: true
#   containers:
#     - my-app-backend
#     - my-app-frontend
#   log_window: "30s"

# mangle:
#   schema_path: ".browsercore/schemas/project.mg"

# browser:
#   headless: false
#   viewport_width: 1280
#   viewport_height: 720
`
	configPath := filepath.Join(wsDir, WorkspaceConfigFile)
	if err := os.WriteFile(configPath, []byte(templateConfig), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	gitignoreContent := "# Runtime data (logs, sessions) - do not version control\ndata/\n"
	gitignorePath := filepath.Join(wsDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte(gitignoreContent), 0644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	return nil
}

// resolveWorkspacePaths resolves relative paths in the config against the workspace directory.
func resolveWorkspacePaths(cfg Config, wsDir string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wsDir, p)
	}

	cfg.Server.LogFile = resolve(cfg.Server.LogFile)
	cfg.Browser.SessionStore = resolve(cfg.Browser.SessionStore)
	cfg.Mangle.SchemaPath = resolve(cfg.Mangle.SchemaPath)
	return cfg
}

// Validate ensures required fields exist so the server can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Browser.AutoStart {
		if c.Browser.DebuggerURL == "" && len(c.Browser.Launch) == 0 {
			return errors.New("browser.debugger_url or browser.launch must be provided")
		}
	}
	if c.Pool.MaxSize < c.Pool.MinSize {
		return errors.New("pool.max_size must be >= pool.min_size")
	}
	switch c.Perception.Tracing {
	case "", "off", "on":
	default:
		return errors.New("perception.tracing must be \"off\" or \"on\"")
	}
	return nil
}

// NavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	return parseDurationOr(b.DefaultNavigationTimeout, 15*time.Second)
}

// AttachTimeout returns the parsed attach timeout with a sane default.
func (b BrowserConfig) AttachTimeout() time.Duration {
	return parseDurationOr(b.DefaultAttachTimeout, 10*time.Second)
}

// IsHeadless returns whether Chrome should run in headless mode (default: true).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true
	}
	return *b.Headless
}

// GetViewportWidth returns the viewport width with a sane default.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return 1920
	}
	return b.ViewportWidth
}

// GetViewportHeight returns the viewport height with a sane default.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return 1080
	}
	return b.ViewportHeight
}

func (p PoolConfig) Checkout() time.Duration  { return parseDurationOr(p.CheckoutTimeout, 10*time.Second) }
func (p PoolConfig) Liveness() time.Duration  { return parseDurationOr(p.LivenessInterval, 30*time.Second) }
func (p PoolConfig) MaxAge() time.Duration    { return parseDurationOr(p.MaxHandleAge, 30*time.Minute) }

func (s SessionConfig) Idle() time.Duration { return parseDurationOr(s.IdleTimeout, 15*time.Minute) }

func (p PerceptionConfig) Lightning() time.Duration { return parseDurationOr(p.LightningBudget, 50*time.Millisecond) }
func (p PerceptionConfig) Quick() time.Duration     { return parseDurationOr(p.QuickBudget, 300*time.Millisecond) }
func (p PerceptionConfig) Standard() time.Duration  { return parseDurationOr(p.StandardBudget, 1500*time.Millisecond) }
func (p PerceptionConfig) Deep() time.Duration      { return parseDurationOr(p.DeepBudget, 6000*time.Millisecond) }

func (t ToolConfig) Timeout() time.Duration  { return parseDurationOr(t.DefaultTimeout, 10*time.Second) }
func (t ToolConfig) Cooldown() time.Duration { return parseDurationOr(t.BreakerCooldown, 30*time.Second) }

func (c CacheConfig) TTL() time.Duration { return parseDurationOr(c.DefaultTTL, 2*time.Minute) }

// GetLogWindow returns the parsed log window duration with a sane default.
func (d DockerConfig) GetLogWindow() time.Duration {
	return parseDurationOr(d.LogWindow, 30*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
