package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/pipecache/auth"
	"github.com/jonwraymond/pipecache/observe"
	"github.com/jonwraymond/pipecache/reader"
	"github.com/jonwraymond/pipecache/resilience"
	"github.com/jonwraymond/pipecache/source"
	"github.com/jonwraymond/pipecache/store"
)

// Component types.
const (
	TypeResource = "resource"
	TypeImage    = "image"
	TypeDatabase = "database"
)

// Config is the whole server configuration.
type Config struct {
	Server     ServerConfig               `yaml:"server"`
	Observe    observe.Config             `yaml:"observe"`
	Stores     map[string]store.Config    `yaml:"stores"`
	Evaluator  EvaluatorConfig            `yaml:"evaluator"`
	Sources    SourcesConfig              `yaml:"sources"`
	Databases  map[string]DatabaseConfig  `yaml:"databases"`
	Components map[string]ComponentConfig `yaml:"components"`
	Mounts     []MountConfig              `yaml:"mounts"`
	Admin      AdminConfig                `yaml:"admin"`
	Health     HealthConfig               `yaml:"health"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Default: ":8080"
	Addr string `yaml:"addr"`

	// Default: 10s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MetricsPath serves the prometheus registry. Empty disables it.
	// Default: "/metrics"
	MetricsPath string `yaml:"metrics_path"`
}

// EvaluatorConfig configures caching decisions shared by all mounts.
type EvaluatorConfig struct {
	// KeyPrefix is the first segment of every store key.
	// Default: "pipeline"
	KeyPrefix string `yaml:"key_prefix"`

	// SharedRegeneration lets concurrent misses for one entry share a
	// single regeneration.
	SharedRegeneration bool `yaml:"shared_regeneration"`
}

// SourcesConfig configures source resolution for resource and image
// components.
type SourcesConfig struct {
	// Root serves plain paths and file: URIs. Empty disables the
	// filesystem.
	Root string `yaml:"root"`

	// S3 enables s3:// URIs when set.
	S3 *source.S3Config `yaml:"s3"`

	// Resilience wraps remote resolution.
	Resilience resilience.Config `yaml:"resilience"`
}

// DatabaseConfig opens one database/sql handle.
type DatabaseConfig struct {
	// Default: "mysql"
	Driver string `yaml:"driver"`

	DSN string `yaml:"dsn"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ComponentConfig declares one reusable pipeline component. Exactly the
// section matching Type is used.
type ComponentConfig struct {
	Type string `yaml:"type"`

	Resource reader.ResourceConfig `yaml:"resource"`
	Image    reader.ImageConfig    `yaml:"image"`

	// Database names an entry of Config.Databases.
	Database string                `yaml:"database"`
	Table    reader.DatabaseConfig `yaml:"table"`
}

// MountConfig binds a URL path prefix to a pipeline.
type MountConfig struct {
	// Name identifies the pipeline in logs, metrics and store keys.
	Name string `yaml:"name"`

	// Path is the prefix served, ending in "/". The remainder of the
	// request path is the {path} variable.
	Path string `yaml:"path"`

	// Store names an entry of Config.Stores. Empty disables caching.
	Store string `yaml:"store"`

	Steps []StepConfig `yaml:"steps"`
}

// StepConfig is one pipeline step.
type StepConfig struct {
	// Component names an entry of Config.Components.
	Component string `yaml:"component"`

	// Src may reference {path} and request parameters.
	// Default: "{path}"
	Src string `yaml:"src"`

	Params map[string]string `yaml:"params"`
}

// AdminConfig configures the administrative endpoints.
type AdminConfig struct {
	Enabled bool `yaml:"enabled"`

	// Default: "/admin"
	Prefix string `yaml:"prefix"`

	// Roles admitted to the endpoints.
	// Default: [cache-admin]
	Roles []string `yaml:"roles"`

	JWT     *auth.JWTConfig    `yaml:"jwt"`
	APIKeys *auth.APIKeyConfig `yaml:"api_keys"`
}

// HealthConfig configures readiness checks.
type HealthConfig struct {
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`
}

// Load reads, expands and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands and decodes data, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	expanded, err := ExpandEnvStrict(string(data))
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		c.Server.ReadHeaderTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = "/metrics"
	}
	if c.Observe.ServiceName == "" {
		c.Observe.ServiceName = "pipecache"
	}
	if c.Evaluator.KeyPrefix == "" {
		c.Evaluator.KeyPrefix = "pipeline"
	}
	for name, db := range c.Databases {
		if db.Driver == "" {
			db.Driver = "mysql"
			c.Databases[name] = db
		}
	}
	for i := range c.Mounts {
		for j := range c.Mounts[i].Steps {
			if c.Mounts[i].Steps[j].Src == "" {
				c.Mounts[i].Steps[j].Src = "{path}"
			}
		}
	}
	if c.Admin.Prefix == "" {
		c.Admin.Prefix = "/admin"
	}
	if len(c.Admin.Roles) == 0 {
		c.Admin.Roles = []string{"cache-admin"}
	}
	if c.Health.Timeout <= 0 {
		c.Health.Timeout = 5 * time.Second
	}
}

// Validate reports every inconsistency at once, each wrapping ErrInvalid.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if err := c.Observe.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}
	for name, s := range c.Stores {
		if s.Directory == "" {
			fail("store %q: directory is required", name)
		}
	}
	for name, db := range c.Databases {
		if db.DSN == "" {
			fail("database %q: dsn is required", name)
		}
	}

	for name, comp := range c.Components {
		switch comp.Type {
		case TypeResource, TypeImage:
			if c.Sources.Root == "" && c.Sources.S3 == nil {
				fail("component %q: no source root or s3 configured", name)
			}
		case TypeDatabase:
			if _, ok := c.Databases[comp.Database]; !ok {
				fail("component %q: unknown database %q", name, comp.Database)
			}
		default:
			fail("component %q: unknown type %q", name, comp.Type)
		}
	}

	if len(c.Mounts) == 0 {
		fail("no mounts")
	}
	names := make(map[string]bool, len(c.Mounts))
	paths := make(map[string]bool, len(c.Mounts))
	for i, m := range c.Mounts {
		switch {
		case m.Name == "":
			fail("mount %d: name is required", i)
		case names[m.Name]:
			fail("mount %q: duplicate name", m.Name)
		}
		names[m.Name] = true

		switch {
		case !strings.HasPrefix(m.Path, "/") || !strings.HasSuffix(m.Path, "/"):
			fail("mount %q: path %q must start and end with /", m.Name, m.Path)
		case paths[m.Path]:
			fail("mount %q: duplicate path %q", m.Name, m.Path)
		case c.Admin.Enabled && strings.HasPrefix(m.Path, c.Admin.Prefix+"/"):
			fail("mount %q: path %q is inside the admin prefix", m.Name, m.Path)
		}
		paths[m.Path] = true

		if _, ok := c.Stores[m.Store]; m.Store != "" && !ok {
			fail("mount %q: unknown store %q", m.Name, m.Store)
		}
		if len(m.Steps) == 0 {
			fail("mount %q: no steps", m.Name)
		}
		for _, st := range m.Steps {
			if _, ok := c.Components[st.Component]; !ok {
				fail("mount %q: unknown component %q", m.Name, st.Component)
			}
		}
	}

	if c.Admin.Enabled && c.Admin.JWT == nil && c.Admin.APIKeys == nil {
		fail("admin: enabled without jwt or api_keys")
	}
	if c.Admin.JWT != nil && c.Admin.JWT.Secret == "" {
		fail("admin: jwt secret is required")
	}
	return errors.Join(errs...)
}

