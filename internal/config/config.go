package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
)

// EnvPrefix is the prefix of environment variables overriding the config file.
// Nested keys are separated with "__", e.g. CONFORMER_UPSTREAMS__CANDIDATE__ADDRESS.
const EnvPrefix = "CONFORMER_"

var defaultConfig = Config{
	LogLevel: "warn",
	Metrics: metric{
		Enabled: false,
		Bind:    "0.0.0.0:9001",
	},
	StorageType: "stdout",
	Elasticsearch: Elasticsearch{
		Addresses: []string{"http://127.0.0.1:9200"},
		Index:     "conformer-reports",
	},
	Upstreams: Upstreams{
		Reference: Upstream{Address: "http://127.0.0.1:8080", Timeout: 10 * time.Second},
		Candidate: Upstream{Address: "http://127.0.0.1:8081", Timeout: 10 * time.Second},
	},
	Worker: worker{
		Count:     8,
		QueueSize: 256,
	},
	RateLimit: rateLimit{
		RequestsPerSecond: 0,
		Burst:             1,
	},
	GlobalConfig: GlobalConfig{
		SkipJSONPaths:   []string{},
		StoreReqBody:    false,
		StoreRespBodies: true,
	},
	RouteConfigs: make(map[string]RouteConfig),
	SkipRoutes:   []string{},
}

// Config represents the configuration of a conformance run.
type Config struct {
	LogLevel      string        `koanf:"log_level"` // Log level: "debug", "info", "warn", "error", "fatal"
	Metrics       metric        `koanf:"metrics"`
	StorageType   string        `koanf:"storage_type"` // Storage backend type: "elasticsearch" or "stdout"
	Elasticsearch Elasticsearch `koanf:"elasticsearch"`
	Upstreams     Upstreams     `koanf:"upstreams"`
	Worker        worker        `koanf:"worker"`
	RateLimit     rateLimit     `koanf:"rate_limit"`
	FailFast      bool          `koanf:"fail_fast"` // Stop dispatching cases after the first failure

	GlobalConfig GlobalConfig           `koanf:"global_config"`
	RouteConfigs map[string]RouteConfig `koanf:"route_configs"`
	SkipRoutes   []string               `koanf:"skip_routes"`

	Cases []Case `koanf:"cases"`

	// Routes is filled by Load from GlobalConfig, RouteConfigs and SkipRoutes
	Routes *ComputedRouteConfigs `koanf:"-"`
}

type metric struct {
	Enabled bool   `koanf:"enabled"`
	Bind    string `koanf:"bind"`
}

// Elasticsearch configures the report index used when StorageType is "elasticsearch".
type Elasticsearch struct {
	Addresses              []string `koanf:"addresses"`
	Username               string   `koanf:"username"`
	Password               string   `koanf:"password"`
	CloudID                string   `koanf:"cloud_id"`
	APIKey                 string   `koanf:"api_key"`
	ServiceToken           string   `koanf:"service_token"`
	CertificateFingerprint string   `koanf:"certificate_fingerprint"`
	Index                  string   `koanf:"index"`
}

// Upstreams are the two backends under comparison.
type Upstreams struct {
	Reference Upstream `koanf:"reference"`
	Candidate Upstream `koanf:"candidate"`
}

// Upstream is one backend.
type Upstream struct {
	Address string            `koanf:"address"`
	Timeout time.Duration     `koanf:"timeout"`
	Headers map[string]string `koanf:"headers"`
}

type worker struct {
	Count     uint `koanf:"count"`
	QueueSize uint `koanf:"queue_size"`
}

type rateLimit struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"` // 0 disables throttling
	Burst             int     `koanf:"burst"`
}

// Case is one request sent to both upstreams.
type Case struct {
	Name     string `koanf:"name"`
	Method   string `koanf:"method"`
	Endpoint string `koanf:"endpoint"` // Catalog name or path template with "{}" placeholders
	Args     []any  `koanf:"args"`     // Positional placeholder values
	Body     any    `koanf:"body"`     // Query parameters for GET/DELETE, JSON payload otherwise
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("error in loading the default config: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error in loading the config file: %w", err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("error in loading the environment: %w", err)
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("error in unmarshalling the config file: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	c.Routes = c.PrecomputeRouteConfigs()
	return &c, nil
}

// Validate checks upstreams, cases and route patterns.
func (c *Config) Validate() error {
	if c.Upstreams.Reference.Address == "" {
		return fmt.Errorf("reference upstream address can not be empty")
	}
	if c.Upstreams.Candidate.Address == "" {
		return fmt.Errorf("candidate upstream address can not be empty")
	}
	if c.Worker.Count == 0 {
		return fmt.Errorf("worker count must be positive")
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.requests_per_second can not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit.burst must be at least 1 when requests_per_second is set")
	}

	switch c.StorageType {
	case "stdout", "elasticsearch":
	default:
		return fmt.Errorf("unknown storage type %q", c.StorageType)
	}

	for i := range c.Cases {
		cs := &c.Cases[i]
		cs.Method = strings.ToUpper(cs.Method)
		if !IsSupportedMethod(cs.Method) {
			return fmt.Errorf("case %d (%s): unsupported method %q", i, cs.Name, cs.Method)
		}
		if cs.Endpoint == "" {
			return fmt.Errorf("case %d (%s): endpoint can not be empty", i, cs.Name)
		}
		if cs.Name == "" {
			cs.Name = FormatRoute(cs.Method, cs.Endpoint)
		}
	}

	return c.validateRoutePatterns()
}

// IsSupportedMethod reports whether method can be dispatched by a case.
func IsSupportedMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
