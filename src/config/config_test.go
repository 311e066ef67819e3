package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func isolated(extra LoadOptions) LoadOptions {
	if extra.EnvFile == "" {
		extra.EnvFile = filepath.Join(os.TempDir(), "pymaker-no-such.env")
	}
	if extra.LookupEnv == nil {
		extra.LookupEnv = envMap(nil)
	}
	return extra
}

func TestLoadDefaultsWithoutFiles(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(isolated(LoadOptions{}))
	require.NoError(t, err)

	assert.Equal(t, Default().Endpoint, cfg.Endpoint)
	assert.Equal(t, "Qwen/Qwen2.5-Coder-7B-Instruct", cfg.Model)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"python3", "python"}, cfg.Interpreters)

	_, err = cfg.Credential()
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Contains(t, err.Error(), "HF_TOKEN")
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeFile(t, "pymaker.yaml", `
model: local/coder
temperature: 0.5
max_tokens: 512
timeout: 15s
scripts_dir: out
interpreters: [python3.12]
`)
	cfg, err := Load(isolated(LoadOptions{Path: path}))
	require.NoError(t, err)

	assert.Equal(t, "local/coder", cfg.Model)
	assert.InDelta(t, 0.5, cfg.Temperature, 1e-9)
	assert.Equal(t, 512, cfg.MaxTokens)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, "out", cfg.ScriptsDir)
	assert.Equal(t, []string{"python3.12"}, cfg.Interpreters)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(isolated(LoadOptions{Path: filepath.Join(t.TempDir(), "missing.yaml")}))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "model: [unterminated\n")
	_, err := Load(isolated(LoadOptions{Path: path}))
	assert.Error(t, err)
}

func TestLoadCredentialFromDotEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "HF_TOKEN=from-file\n")
	cfg, err := Load(isolated(LoadOptions{EnvFile: envFile}))
	require.NoError(t, err)

	token, err := cfg.Credential()
	require.NoError(t, err)
	assert.Equal(t, "from-file", token)
}

func TestEnvironmentBeatsDotEnv(t *testing.T) {
	envFile := writeFile(t, ".env", "HF_TOKEN=from-file\nPYMAKER_MODEL=file-model\n")
	cfg, err := Load(isolated(LoadOptions{
		EnvFile:   envFile,
		LookupEnv: envMap(map[string]string{"HF_TOKEN": "from-env"}),
	}))
	require.NoError(t, err)

	token, _ := cfg.Credential()
	assert.Equal(t, "from-env", token)
	assert.Equal(t, "file-model", cfg.Model)
}

func TestCustomTokenEnv(t *testing.T) {
	path := writeFile(t, "pymaker.yaml", "token_env: MY_KEY\n")
	cfg, err := Load(isolated(LoadOptions{
		Path:      path,
		LookupEnv: envMap(map[string]string{"MY_KEY": "k", "HF_TOKEN": "ignored"}),
	}))
	require.NoError(t, err)
	token, err := cfg.Credential()
	require.NoError(t, err)
	assert.Equal(t, "k", token)
}

func TestOverridesWin(t *testing.T) {
	cfg, err := Load(isolated(LoadOptions{
		LookupEnv: envMap(map[string]string{
			"PYMAKER_MODEL":       "env-model",
			"PYMAKER_SCRIPTS_DIR": "env-dir",
		}),
		Overrides: Overrides{Model: "flag-model", LogDir: "flag-logs"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "flag-model", cfg.Model)
	assert.Equal(t, "env-dir", cfg.ScriptsDir)
	assert.Equal(t, "flag-logs", cfg.LogDir)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"endpoint":     func(c *Config) { c.Endpoint = "ftp://x" },
		"model":        func(c *Config) { c.Model = " " },
		"temperature":  func(c *Config) { c.Temperature = 3 },
		"max_tokens":   func(c *Config) { c.MaxTokens = 0 },
		"timeout":      func(c *Config) { c.Timeout = 0 },
		"interpreters": func(c *Config) { c.Interpreters = nil },
	}
	for field, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		err := cfg.Validate()
		var cfgErr *Error
		require.True(t, errors.As(err, &cfgErr), field)
		assert.Equal(t, field, cfgErr.Field)
	}
	assert.NoError(t, Default().Validate())
}

