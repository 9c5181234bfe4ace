// Package config resolves run configuration from an optional HCL file, a
// .env file and the process environment. Command-line flags are applied on
// top by the caller.
//
// Example file:
//
//	projects_dir = "/data/dbt_projects"
//	output       = "enhanced_schema.json"
//
//	describer "huggingface" {
//	  model            = "google/flan-t5-base"
//	  context_strategy = "code"
//	  timeout_seconds  = 30
//	  cache_size       = 2048
//	}
//
//	sink "sqlite" {
//	  dsn = "lineage.db"
//	}
//
//	upload {
//	  bucket   = "lineage"
//	  endpoint = "localhost:9000"
//	}
//
// Secrets never come from the file: API keys and S3 credentials are read from
// the environment only.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/joho/godotenv"
)

// Describer backends.
const (
	BackendHuggingFace = "huggingface"
	BackendGemini      = "gemini"
	BackendNone        = "none"
)

const (
	DefaultOutput    = "enhanced_schema.json"
	DefaultCacheSize = 1024
	DefaultTimeout   = 60 * time.Second
	DefaultBucket    = "dbtlineage-artifacts"
)

// ErrInvalidConfig is returned for values that cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the resolved configuration of one run.
type Config struct {
	ProjectsDir string
	Projects    []string
	Output      string
	HTML        string
	DocsDir     string
	DocsFormat  string

	Describer Describer
	// DatabaseURL selects the lineage store; empty disables it.
	DatabaseURL string
	// Upload is nil when artifacts are not uploaded.
	Upload *Upload
}

// Describer configures column description generation.
type Describer struct {
	Backend         string
	Model           string
	APIKey          string
	ContextStrategy string
	Timeout         time.Duration
	CacheSize       int

	// Explicit is set when the backend was chosen by the file or a flag
	// rather than taken from Default.
	Explicit bool
}

// Upload configures the S3 artifact upload.
type Upload struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	RunID     string
}

type fileConfig struct {
	ProjectsDir string          `hcl:"projects_dir,optional"`
	Projects    []string        `hcl:"projects,optional"`
	Output      string          `hcl:"output,optional"`
	HTML        string          `hcl:"html,optional"`
	DocsDir     string          `hcl:"docs_dir,optional"`
	DocsFormat  string          `hcl:"docs_format,optional"`
	Describer   *describerBlock `hcl:"describer,block"`
	Sink        *sinkBlock      `hcl:"sink,block"`
	Upload      *uploadBlock    `hcl:"upload,block"`
}

type describerBlock struct {
	Backend         string `hcl:"backend,label"`
	Model           string `hcl:"model,optional"`
	ContextStrategy string `hcl:"context_strategy,optional"`
	TimeoutSeconds  int    `hcl:"timeout_seconds,optional"`
	CacheSize       *int   `hcl:"cache_size,optional"`
}

type sinkBlock struct {
	Driver string `hcl:"driver,label"`
	DSN    string `hcl:"dsn"`
}

type uploadBlock struct {
	Bucket   string `hcl:"bucket,optional"`
	Endpoint string `hcl:"endpoint,optional"`
	Region   string `hcl:"region,optional"`
	UseSSL   *bool  `hcl:"use_ssl,optional"`
	RunID    string `hcl:"run_id,optional"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Output:     DefaultOutput,
		DocsFormat: "markdown",
		Describer: Describer{
			Backend:         BackendHuggingFace,
			ContextStrategy: "basic",
			Timeout:         DefaultTimeout,
			CacheSize:       DefaultCacheSize,
		},
	}
}

// LoadDotEnv loads .env style files into the environment. Missing files are
// ignored; variables already set win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		_ = godotenv.Load()
		return
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Load reads path (if not empty) over the defaults, then applies the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse config file %s: %s", path, diags.Error())
	}

	var fc fileConfig
	if diags := gohcl.DecodeBody(file.Body, nil, &fc); diags.HasErrors() {
		return fmt.Errorf("failed to decode config file %s: %s", path, diags.Error())
	}

	c.ProjectsDir = firstNonEmpty(fc.ProjectsDir, c.ProjectsDir)
	if len(fc.Projects) > 0 {
		c.Projects = fc.Projects
	}
	c.Output = firstNonEmpty(fc.Output, c.Output)
	c.HTML = firstNonEmpty(fc.HTML, c.HTML)
	c.DocsDir = firstNonEmpty(fc.DocsDir, c.DocsDir)
	c.DocsFormat = firstNonEmpty(fc.DocsFormat, c.DocsFormat)

	if d := fc.Describer; d != nil {
		c.Describer.Backend = strings.ToLower(d.Backend)
		c.Describer.Explicit = true
		c.Describer.Model = d.Model
		c.Describer.ContextStrategy = firstNonEmpty(d.ContextStrategy, c.Describer.ContextStrategy)
		if d.TimeoutSeconds != 0 {
			c.Describer.Timeout = time.Duration(d.TimeoutSeconds) * time.Second
		}
		if d.CacheSize != nil {
			c.Describer.CacheSize = *d.CacheSize
		}
	}

	if s := fc.Sink; s != nil {
		c.DatabaseURL = sinkURL(s.Driver, s.DSN)
	}

	if u := fc.Upload; u != nil {
		c.Upload = &Upload{
			Bucket:   u.Bucket,
			Endpoint: u.Endpoint,
			Region:   u.Region,
			UseSSL:   u.UseSSL == nil || *u.UseSSL,
			RunID:    u.RunID,
		}
	}
	return nil
}

// sinkURL builds a store URL from a sink block; a dsn that already carries a
// scheme is used as is.
func sinkURL(driver, dsn string) string {
	if strings.Contains(dsn, "://") {
		return dsn
	}
	if driver == "postgresql" {
		driver = "postgres"
	}
	return driver + "://" + dsn
}

// ApplyEnv fills secrets and environment overrides using getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	c.ResolveAPIKey(getenv)
	c.DatabaseURL = firstNonEmpty(trimmed(getenv)("DBTLINEAGE_DB_URL"), c.DatabaseURL)

	if c.Upload == nil && trimmed(getenv)("DBTLINEAGE_S3_BUCKET") == "" {
		return
	}
	c.EnableUpload(getenv)
}

// ResolveAPIKey reads the API key of the configured describer backend.
func (c *Config) ResolveAPIKey(getenv func(string) string) {
	env := trimmed(getenv)
	switch c.Describer.Backend {
	case BackendHuggingFace:
		c.Describer.APIKey = firstNonEmpty(env("HF_API_KEY"), env("HUGGINGFACE_API_KEY"))
	case BackendGemini:
		c.Describer.APIKey = firstNonEmpty(env("GEMINI_API_KEY"), env("GOOGLE_API_KEY"))
	default:
		c.Describer.APIKey = ""
	}
}

// EnableUpload turns on the artifact upload and fills it from the environment.
func (c *Config) EnableUpload(getenv func(string) string) {
	env := trimmed(getenv)
	if c.Upload == nil {
		c.Upload = &Upload{UseSSL: true}
	}
	u := c.Upload
	u.Endpoint = firstNonEmpty(env("DBTLINEAGE_S3_ENDPOINT"), u.Endpoint)
	u.Region = firstNonEmpty(env("DBTLINEAGE_S3_REGION"), u.Region, "us-east-1")
	u.Bucket = firstNonEmpty(env("DBTLINEAGE_S3_BUCKET"), u.Bucket, DefaultBucket)
	u.AccessKey = firstNonEmpty(env("DBTLINEAGE_S3_ACCESS_KEY"), env("MINIO_ROOT_USER"), u.AccessKey)
	u.SecretKey = firstNonEmpty(env("DBTLINEAGE_S3_SECRET_KEY"), env("MINIO_ROOT_PASSWORD"), u.SecretKey)
	if raw := env("DBTLINEAGE_S3_USE_SSL"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			u.UseSSL = v
		}
	}
}

func trimmed(getenv func(string) string) func(string) string {
	return func(key string) string { return strings.TrimSpace(getenv(key)) }
}

// DisableDescriberWithoutKey switches an implicitly selected backend to
// BackendNone when no API key resolved, and reports whether it did. An
// explicitly chosen backend is left for Validate to reject.
func (c *Config) DisableDescriberWithoutKey() bool {
	d := &c.Describer
	if d.Explicit || d.APIKey != "" {
		return false
	}
	if d.Backend != BackendHuggingFace && d.Backend != BackendGemini {
		return false
	}
	d.Backend = BackendNone
	return true
}

// Validate checks values the pipeline cannot recover from.
func (c *Config) Validate() error {
	switch c.Describer.Backend {
	case BackendHuggingFace, BackendGemini:
		if c.Describer.APIKey == "" {
			return fmt.Errorf("%w: %s describer needs an API key in the environment", ErrInvalidConfig, c.Describer.Backend)
		}
	case BackendNone:
	default:
		return fmt.Errorf("%w: unknown describer %q (use huggingface, gemini or none)", ErrInvalidConfig, c.Describer.Backend)
	}
	if c.Describer.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	if c.Describer.CacheSize < 0 {
		return fmt.Errorf("%w: negative cache size", ErrInvalidConfig)
	}
	if c.ProjectsDir == "" && len(c.Projects) == 0 {
		return fmt.Errorf("%w: no projects given (use --projects-dir or project paths)", ErrInvalidConfig)
	}
	if c.DocsFormat != "text" && c.DocsFormat != "markdown" {
		return fmt.Errorf("%w: docs format must be 'text' or 'markdown'", ErrInvalidConfig)
	}
	if c.Upload != nil && c.Upload.Endpoint == "" {
		return fmt.Errorf("%w: upload needs an endpoint", ErrInvalidConfig)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
