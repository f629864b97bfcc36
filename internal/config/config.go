package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/medgraph/internal/observability"
	"github.com/yungbote/medgraph/internal/platform/logger"
)

const EnvPrefix = "MEDGRAPH"

type Config struct {
	Log        logger.Config            `mapstructure:"log" yaml:"log"`
	Otel       observability.OtelConfig `mapstructure:"otel" yaml:"otel"`
	Metrics    MetricsConfig            `mapstructure:"metrics" yaml:"metrics"`
	Graph      GraphConfig              `mapstructure:"graph" yaml:"graph"`
	Completion CompletionConfig         `mapstructure:"completion" yaml:"completion"`
	Ingest     IngestConfig             `mapstructure:"ingest" yaml:"ingest"`
	HTTP       HTTPConfig               `mapstructure:"http" yaml:"http"`
	Chat       ChatConfig               `mapstructure:"chat" yaml:"chat"`
}

// MetricsConfig enables the Prometheus endpoint at GET /metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

type GraphConfig struct {
	// Backends is the connection order; the first one that answers wins.
	Backends []string      `mapstructure:"backends" yaml:"backends"`
	Neo4j    Neo4jConfig   `mapstructure:"neo4j" yaml:"neo4j"`
	TuGraph  TuGraphConfig `mapstructure:"tugraph" yaml:"tugraph"`
}

type Neo4jConfig struct {
	Host        string        `mapstructure:"host" yaml:"host"`
	BoltPort    int           `mapstructure:"bolt_port" yaml:"bolt_port"`
	HTTPPort    int           `mapstructure:"http_port" yaml:"http_port"`
	User        string        `mapstructure:"user" yaml:"user"`
	Password    string        `mapstructure:"password" yaml:"password"`
	Database    string        `mapstructure:"database" yaml:"database"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxPoolSize int           `mapstructure:"max_pool_size" yaml:"max_pool_size"`
}

func (n Neo4jConfig) BoltURI() string {
	return "bolt://" + net.JoinHostPort(n.Host, strconv.Itoa(n.BoltPort))
}

func (n Neo4jConfig) HTTPURL() string {
	return "http://" + net.JoinHostPort(n.Host, strconv.Itoa(n.HTTPPort))
}

type TuGraphConfig struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	User         string        `mapstructure:"user" yaml:"user"`
	Password     string        `mapstructure:"password" yaml:"password"`
	Graph        string        `mapstructure:"graph" yaml:"graph"`
	LoginTimeout time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`
	QueryTimeout time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
}

func (t TuGraphConfig) URL() string {
	return "http://" + net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

type CompletionConfig struct {
	BaseURL             string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey              string        `mapstructure:"api_key" yaml:"api_key"`
	Model               string        `mapstructure:"model" yaml:"model"`
	ChatCompletionsPath string        `mapstructure:"chat_completions_path" yaml:"chat_completions_path"`
	MaxTokens           int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout             time.Duration `mapstructure:"timeout" yaml:"timeout"`
	StreamTimeout       time.Duration `mapstructure:"stream_timeout" yaml:"stream_timeout"`
	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`
}

type IngestConfig struct {
	File        string `mapstructure:"file" yaml:"file"`
	BatchSize   int    `mapstructure:"batch_size" yaml:"batch_size"`
	NodeWorkers int    `mapstructure:"node_workers" yaml:"node_workers"`
}

type HTTPConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxRequestBytes   int64         `mapstructure:"max_request_bytes" yaml:"max_request_bytes"`
	CORSOrigins       []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
}

type ChatConfig struct {
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	Verbose     bool    `mapstructure:"verbose" yaml:"verbose"`
	Stream      bool    `mapstructure:"stream" yaml:"stream"`
}

const (
	BackendBolt    = "bolt"
	BackendHTTP    = "http"
	BackendTuGraph = "tugraph"
)

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.mode", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("log.compress", true)

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.service_name", "medgraph")
	v.SetDefault("otel.environment", "development")
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.insecure", false)
	v.SetDefault("otel.sample_ratio", 0.1)

	v.SetDefault("metrics.enabled", false)

	v.SetDefault("graph.backends", []string{BackendBolt, BackendHTTP, BackendTuGraph})
	v.SetDefault("graph.neo4j.host", "127.0.0.1")
	v.SetDefault("graph.neo4j.bolt_port", 7687)
	v.SetDefault("graph.neo4j.http_port", 7474)
	v.SetDefault("graph.neo4j.user", "neo4j")
	v.SetDefault("graph.neo4j.password", "password")
	v.SetDefault("graph.neo4j.database", "neo4j")
	v.SetDefault("graph.neo4j.timeout", "10s")
	v.SetDefault("graph.neo4j.max_pool_size", 10)
	v.SetDefault("graph.tugraph.host", "127.0.0.1")
	v.SetDefault("graph.tugraph.port", 7070)
	v.SetDefault("graph.tugraph.user", "admin")
	v.SetDefault("graph.tugraph.password", "")
	v.SetDefault("graph.tugraph.graph", "medical")
	v.SetDefault("graph.tugraph.login_timeout", "10s")
	v.SetDefault("graph.tugraph.query_timeout", "30s")

	v.SetDefault("completion.base_url", "https://api.moonshot.cn")
	v.SetDefault("completion.api_key", "")
	v.SetDefault("completion.model", "kimi-k2-turbo-preview")
	v.SetDefault("completion.chat_completions_path", "/v1/chat/completions")
	v.SetDefault("completion.max_tokens", 4000)
	v.SetDefault("completion.timeout", "60s")
	v.SetDefault("completion.stream_timeout", "5m")
	v.SetDefault("completion.rate_limit", 0)
	v.SetDefault("completion.burst", 1)

	v.SetDefault("ingest.file", "data/medical.json")
	v.SetDefault("ingest.batch_size", 500)
	v.SetDefault("ingest.node_workers", 1)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_header_timeout", "5s")
	v.SetDefault("http.shutdown_timeout", "15s")
	v.SetDefault("http.max_request_bytes", 1<<20)
	v.SetDefault("http.cors_origins", []string{"*"})

	v.SetDefault("chat.temperature", 0.5)
	v.SetDefault("chat.verbose", false)
	v.SetDefault("chat.stream", false)
}

// legacyEnv maps keys to the unprefixed variables older deployments export.
var legacyEnv = map[string]string{
	"graph.neo4j.host":       "NEO4J_HOST",
	"graph.neo4j.http_port":  "NEO4J_PORT",
	"graph.neo4j.bolt_port":  "NEO4J_BOLT_PORT",
	"graph.neo4j.user":       "NEO4J_USER",
	"graph.neo4j.password":   "NEO4J_PASSWORD",
	"graph.tugraph.host":     "TUGRAPH_HOST",
	"graph.tugraph.port":     "TUGRAPH_PORT",
	"graph.tugraph.user":     "TUGRAPH_USER",
	"graph.tugraph.password": "TUGRAPH_PASSWORD",
	"completion.api_key":     "KIMI_API_KEY",
	"log.mode":               "LOG_MODE",
	"log.level":              "LOG_LEVEL",
}

// BindEnv makes MEDGRAPH_GRAPH_NEO4J_HOST style variables and the legacy
// names override file values. The prefixed name wins when both are set.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("config: bind %s: %w", key, err)
		}
	}
	return nil
}

// New returns a viper instance with defaults and env bindings, reading
// path when given or ./medgraph.yaml when present.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("medgraph")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}
	return v, nil
}

// Load builds, decodes and validates the configuration.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Completion.BaseURL = strings.TrimRight(strings.TrimSpace(c.Completion.BaseURL), "/")
	c.Completion.APIKey = strings.TrimSpace(c.Completion.APIKey)
	for i, b := range c.Graph.Backends {
		c.Graph.Backends[i] = strings.ToLower(strings.TrimSpace(b))
	}
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Graph.Backends) == 0 {
		errs = append(errs, errors.New("graph.backends must list at least one backend"))
	}
	for _, b := range c.Graph.Backends {
		switch b {
		case BackendBolt, BackendHTTP, BackendTuGraph:
		default:
			errs = append(errs, fmt.Errorf("graph.backends: unknown backend %q", b))
		}
	}
	if c.Ingest.BatchSize <= 0 {
		errs = append(errs, errors.New("ingest.batch_size must be a positive integer"))
	}
	if c.Ingest.NodeWorkers <= 0 {
		errs = append(errs, errors.New("ingest.node_workers must be a positive integer"))
	}
	if c.Chat.Temperature < 0 || c.Chat.Temperature > 1 {
		errs = append(errs, errors.New("chat.temperature must be between 0 and 1"))
	}
	if c.Completion.MaxTokens <= 0 {
		errs = append(errs, errors.New("completion.max_tokens must be a positive integer"))
	}
	if c.Completion.Timeout <= 0 {
		errs = append(errs, errors.New("completion.timeout must be positive"))
	}
	if c.Completion.RateLimit < 0 {
		errs = append(errs, errors.New("completion.rate_limit must not be negative"))
	}
	if c.Graph.TuGraph.QueryTimeout <= 0 || c.Graph.TuGraph.LoginTimeout <= 0 {
		errs = append(errs, errors.New("graph.tugraph timeouts must be positive"))
	}
	return errors.Join(errs...)
}

// YAML renders the effective configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	masked := *c
	masked.Graph.Neo4j.Password = mask(c.Graph.Neo4j.Password)
	masked.Graph.TuGraph.Password = mask(c.Graph.TuGraph.Password)
	masked.Completion.APIKey = mask(c.Completion.APIKey)
	masked.Log.HashSalt = mask(c.Log.HashSalt)
	return yaml.Marshal(&masked)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "******"
}
