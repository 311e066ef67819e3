// Package config resolves runtime settings from defaults, an optional YAML
// file, a .env file, the environment and command-line overrides, in that
// order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Protocol-Lattice/lattice-pymaker/src/convo"
	"github.com/Protocol-Lattice/lattice-pymaker/src/llm"
	"github.com/Protocol-Lattice/lattice-pymaker/src/runner"
)

const (
	DefaultPath     = "pymaker.yaml"
	DefaultEnvFile  = ".env"
	DefaultTokenEnv = "HF_TOKEN"
	DefaultLogDir   = "logs"
)

// ErrMissingCredential is returned by Credential when the token variable is
// unset or empty.
var ErrMissingCredential = errors.New("missing API credential")

// Error reports an invalid setting.
type Error struct {
	Field string
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

type Config struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int           `yaml:"max_tokens"`
	Timeout      time.Duration `yaml:"timeout"`
	TokenEnv     string        `yaml:"token_env"`
	ScriptsDir   string        `yaml:"scripts_dir"`
	LogDir       string        `yaml:"log_dir"`
	Interpreters []string      `yaml:"interpreters"`
	SystemPrompt string        `yaml:"system_prompt"`

	token string
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Endpoint:     llm.DefaultEndpoint,
		Model:        llm.DefaultModel,
		Temperature:  llm.DefaultTemperature,
		MaxTokens:    llm.DefaultMaxTokens,
		Timeout:      llm.DefaultTimeout,
		TokenEnv:     DefaultTokenEnv,
		ScriptsDir:   runner.DefaultDir,
		LogDir:       DefaultLogDir,
		Interpreters: append([]string(nil), runner.DefaultInterpreters...),
		SystemPrompt: convo.DefaultSystemPrompt,
	}
}

// Overrides carries command-line values. Empty fields are ignored.
type Overrides struct {
	Model      string
	Endpoint   string
	ScriptsDir string
	LogDir     string
}

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// Path of the YAML file. Empty means DefaultPath, which may be absent;
	// an explicit path must exist.
	Path string
	// EnvFile is read with godotenv. Empty means DefaultEnvFile. A missing
	// file is not an error.
	EnvFile string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	Overrides Overrides
}

// Load merges every layer, validates the result and reads the credential
// once.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	path, required := opts.Path, true
	if path == "" {
		path, required = DefaultPath, false
	}
	if err := cfg.mergeFile(path, required); err != nil {
		return Config{}, err
	}

	lookup, err := envLookup(opts)
	if err != nil {
		return Config{}, err
	}
	cfg.applyEnv(lookup)
	cfg.applyOverrides(opts.Overrides)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.token, _ = lookup(cfg.TokenEnv)
	cfg.token = strings.TrimSpace(cfg.token)
	return cfg, nil
}

// Credential returns the token read by Load.
func (c Config) Credential() (string, error) {
	if c.token == "" {
		return "", fmt.Errorf("%w: set %s in the environment or a .env file", ErrMissingCredential, c.TokenEnv)
	}
	return c.token, nil
}

func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Endpoint) == "":
		return &Error{Field: "endpoint", Msg: "must not be empty"}
	case !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://"):
		return &Error{Field: "endpoint", Msg: fmt.Sprintf("%q is not an http(s) URL", c.Endpoint)}
	case strings.TrimSpace(c.Model) == "":
		return &Error{Field: "model", Msg: "must not be empty"}
	case c.Temperature < 0 || c.Temperature > 2:
		return &Error{Field: "temperature", Msg: fmt.Sprintf("%v is outside [0, 2]", c.Temperature)}
	case c.MaxTokens <= 0:
		return &Error{Field: "max_tokens", Msg: "must be positive"}
	case c.Timeout <= 0:
		return &Error{Field: "timeout", Msg: "must be positive"}
	case strings.TrimSpace(c.TokenEnv) == "":
		return &Error{Field: "token_env", Msg: "must not be empty"}
	case strings.TrimSpace(c.ScriptsDir) == "":
		return &Error{Field: "scripts_dir", Msg: "must not be empty"}
	case len(c.Interpreters) == 0:
		return &Error{Field: "interpreters", Msg: "need at least one candidate"}
	}
	return nil
}

func (c *Config) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// envLookup prefers the process environment over the .env file, matching
// godotenv.Load, without mutating the environment.
func envLookup(opts LoadOptions) (func(string) (string, bool), error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
		dotenv = nil
	}
	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Model, "PYMAKER_MODEL")
	set(&c.Endpoint, "PYMAKER_ENDPOINT")
	set(&c.ScriptsDir, "PYMAKER_SCRIPTS_DIR")
	set(&c.LogDir, "PYMAKER_LOG_DIR")
}

func (c *Config) applyOverrides(o Overrides) {
	if o.Model != "" {
		c.Model = o.Model
	}
	if o.Endpoint != "" {
		c.Endpoint = o.Endpoint
	}
	if o.ScriptsDir != "" {
		c.ScriptsDir = o.ScriptsDir
	}
	if o.LogDir != "" {
		c.LogDir = o.LogDir
	}
}
