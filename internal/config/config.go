// Package config handles KelvinBot configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Recognized service kinds. Anything else is preserved as-is and
// skipped at instantiation with a warning.
const (
	ServiceKindDummy        = "dummy"
	ServiceKindVoiceChannel = "voicechannel"
	ServiceKindFederated    = "federated"
)

// Recognized middleware kinds.
const (
	MiddlewareKindEcho            = "echo"
	MiddlewareKindInvite          = "invite"
	MiddlewareKindLogger          = "logger"
	MiddlewareKindChatRelay       = "chatrelay"
	MiddlewareKindAttendanceRelay = "attendancerelay"
	MiddlewareKindScheduledPost   = "scheduledpost"
)

// KnownServiceKind reports whether kind names a service this build can
// instantiate.
func KnownServiceKind(kind string) bool {
	switch kind {
	case ServiceKindDummy, ServiceKindVoiceChannel, ServiceKindFederated:
		return true
	}
	return false
}

// KnownMiddlewareKind reports whether kind names a middleware this
// build can instantiate.
func KnownMiddlewareKind(kind string) bool {
	switch kind {
	case MiddlewareKindEcho, MiddlewareKindInvite, MiddlewareKindLogger,
		MiddlewareKindChatRelay, MiddlewareKindAttendanceRelay, MiddlewareKindScheduledPost:
		return true
	}
	return false
}

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/kelvinbot/config.yaml, /config/config.yaml,
// /etc/kelvinbot/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "kelvinbot", "config.yaml"))
	}

	paths = append(paths, "/config/config.yaml") // Container convention
	paths = append(paths, "/etc/kelvinbot/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all KelvinBot configuration.
type Config struct {
	Services      map[string]ServiceConfig    `yaml:"services"`
	Middlewares   map[string]MiddlewareConfig `yaml:"middlewares"`
	DataDirectory string                      `yaml:"data_directory"`
	Reconnection  ReconnectionConfig          `yaml:"reconnection"`
	LogLevel      string                      `yaml:"log_level"`
}

// ReconnectionConfig is the supervised-restart backoff schedule applied
// to every service; there is no per-service override.
type ReconnectionConfig struct {
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	Multiplier   float64  `yaml:"multiplier"`
	JitterFactor float64  `yaml:"jitter_factor"`
}

// ServiceConfig defines one service instance. Kind selects the
// implementation; the remaining fields are kind-specific and ignored by
// kinds that do not use them.
type ServiceConfig struct {
	Kind       string         `yaml:"kind"`
	Middleware MiddlewareList `yaml:"middleware"`

	// dummy
	EmitInterval Duration `yaml:"emit_interval"`

	// voicechannel
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`

	// federated
	Homeserver   string `yaml:"homeserver"`
	AdminBaseURL string `yaml:"admin_base_url"`
	AdminToken   string `yaml:"admin_token"`
	Org          string `yaml:"org"`
}

// MiddlewareConfig defines one middleware instance. Kind selects the
// implementation; the remaining fields are kind-specific.
type MiddlewareConfig struct {
	Kind string `yaml:"kind"`

	// echo, invite
	Command string `yaml:"command"`

	// invite
	UsesAllowed int      `yaml:"uses_allowed"`
	Expiry      Duration `yaml:"expiry"`

	// chatrelay, attendancerelay
	SourceService string `yaml:"source_service"`
	SourceRoom    string `yaml:"source_room"`
	DestService   string `yaml:"dest_service"`
	DestRoom      string `yaml:"dest_room"`

	// chatrelay
	PrefixTag string `yaml:"prefix_tag"`

	// attendancerelay
	SessionStartText string   `yaml:"session_start_text"`
	SessionEndText   string   `yaml:"session_end_text"`
	EndedEditText    string   `yaml:"ended_edit_text"`
	ReplyTimeout     Duration `yaml:"reply_timeout"`

	// scheduledpost
	Body     string   `yaml:"body"`
	Interval Duration `yaml:"interval"`
}

// ServiceDataDir returns the per-service storage root,
// {data_directory}/{service-kind}/{service-name}. Contents are opaque
// to the core.
func (c *Config) ServiceDataDir(name string) string {
	svc := c.Services[name]
	return filepath.Join(c.DataDirectory, svc.Kind, name)
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates
// the result. After Load returns successfully, all fields are usable
// without additional nil/empty checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${HOME}, ${KELVIN_ADMIN_TOKEN}).
	// This is a convenience for container deployments; the recommended
	// approach is to put values directly in the config file.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadWithEnv is Load plus the KELVIN__ environment overlay: variables
// named KELVIN__<KEY>[__<KEY>...] override the corresponding document
// field, with "__" separating nesting levels. For example
// KELVIN__DATA_DIRECTORY=/var/lib/kelvin or
// KELVIN__SERVICES__mumble__TOKEN=hunter2. Overlay values are applied
// after parsing and before validation.
func LoadWithEnv(path string, environ []string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := applyEnvOverlay(cfg, environ); err != nil {
		return nil, fmt.Errorf("environment overlay: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with sensible defaults.
// Called automatically by Load.
func (c *Config) applyDefaults() {
	if c.DataDirectory == "" {
		c.DataDirectory = "./data"
	}
	if c.Reconnection.InitialDelay == 0 {
		c.Reconnection.InitialDelay = Duration(1 * time.Second)
	}
	if c.Reconnection.MaxDelay == 0 {
		c.Reconnection.MaxDelay = Duration(60 * time.Second)
	}
	if c.Reconnection.Multiplier == 0 {
		c.Reconnection.Multiplier = 2.0
	}
	if c.Reconnection.JitterFactor == 0 {
		c.Reconnection.JitterFactor = 0.1
	}
}

// Validate checks cross-field consistency. A middleware name referenced
// by a service but not defined under middlewares is a fatal
// configuration error; an unknown kind is not (it is skipped with a
// warning at instantiation instead).
func (c *Config) Validate() error {
	for name, svc := range c.Services {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("service with empty name")
		}
		if svc.Kind == "" {
			return fmt.Errorf("service %q: kind is required", name)
		}
		for _, mw := range svc.Middleware {
			if _, ok := c.Middlewares[mw]; !ok {
				return fmt.Errorf("service %q references undefined middleware %q", name, mw)
			}
		}
	}
	for name, mw := range c.Middlewares {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("middleware with empty name")
		}
		if mw.Kind == "" {
			return fmt.Errorf("middleware %q: kind is required", name)
		}
	}
	return nil
}
