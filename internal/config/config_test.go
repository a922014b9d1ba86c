package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

// chdir moves the test into dir for its duration.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestInitialize(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if v == nil {
		t.Fatal("viper instance is nil after Initialize()")
	}
}

func TestDefaults(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	tests := []struct {
		key      string
		expected interface{}
		getter   func(string) interface{}
	}{
		{"server-url", "", func(k string) interface{} { return GetString(k) }},
		{"ssl-verify", true, func(k string) interface{} { return GetBool(k) }},
		{"max-threads", 20, func(k string) interface{} { return GetInt(k) }},
		{"retries", 5, func(k string) interface{} { return GetInt(k) }},
		{"read-timeout", 5 * time.Minute, func(k string) interface{} { return GetDuration(k) }},
		{"ignore-version-check", false, func(k string) interface{} { return GetBool(k) }},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := tt.getter(tt.key)
			if got != tt.expected {
				t.Errorf("GetXXX(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestEnvironmentBinding(t *testing.T) {
	tests := []struct {
		envVar   string
		key      string
		value    string
		expected interface{}
		getter   func(string) interface{}
	}{
		{"BBS_MAX_THREADS", "max-threads", "4", 4, func(k string) interface{} { return GetInt(k) }},
		{"BBS_SERVER_URL", "server-url", "https://bbs.example.com", "https://bbs.example.com", func(k string) interface{} { return GetString(k) }},
		{"BBS_READ_TIMEOUT", "read-timeout", "10s", 10 * time.Second, func(k string) interface{} { return GetDuration(k) }},
		{"BITBUCKET_SERVER_URL", "server-url", "https://legacy.example.com", "https://legacy.example.com", func(k string) interface{} { return GetString(k) }},
		{"BITBUCKET_SERVER_API_USERNAME", "username", "migrator", "migrator", func(k string) interface{} { return GetString(k) }},
		{"BITBUCKET_SERVER_API_TOKEN", "token", "s3cret", "s3cret", func(k string) interface{} { return GetString(k) }},
		{"SSL_VERIFY", "ssl-verify", "false", false, func(k string) interface{} { return GetBool(k) }},
	}

	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)
			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() returned error: %v", err)
			}
			got := tt.getter(tt.key)
			if got != tt.expected {
				t.Errorf("GetXXX(%q) with %s=%s = %v, want %v", tt.key, tt.envVar, tt.value, got, tt.expected)
			}
		})
	}
}

func TestPrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("BBS_USERNAME", "new")
	t.Setenv("BITBUCKET_SERVER_API_USERNAME", "old")
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetString("username"); got != "new" {
		t.Errorf("username = %q, want %q", got, "new")
	}
}

func TestConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
server-url: https://file.example.com
max-threads: 3
models: [pull_requests]
read-timeout: 15s
`
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigName+".yaml"), []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	chdir(t, tmpDir)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	if got := GetString("server-url"); got != "https://file.example.com" {
		t.Errorf("server-url = %q", got)
	}
	if got := GetInt("max-threads"); got != 3 {
		t.Errorf("max-threads = %d, want 3", got)
	}
	if got := GetDuration("read-timeout"); got != 15*time.Second {
		t.Errorf("read-timeout = %v, want 15s", got)
	}
	if got := ConfigFileUsed(); filepath.Base(got) != ConfigName+".yaml" {
		t.Errorf("ConfigFileUsed() = %q", got)
	}
}

func TestConfigFileFromXDG(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := filepath.Join(xdg, ConfigName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ConfigName+".yaml"), []byte("retries: 9\n"), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, t.TempDir())

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetInt("retries"); got != 9 {
		t.Errorf("retries = %d, want 9", got)
	}
}

func TestDotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("BITBUCKET_SERVER_API_PASSWORD=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, tmpDir)
	// godotenv sets the variable on the process; register it for cleanup.
	t.Setenv("BITBUCKET_SERVER_API_PASSWORD", "")
	_ = os.Unsetenv("BITBUCKET_SERVER_API_PASSWORD")

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetString("password"); got != "from-dotenv" {
		t.Errorf("password = %q, want %q", got, "from-dotenv")
	}
}

func TestBindFlag(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatal(err)
	}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("max-threads", 20, "")
	if err := BindFlag("max-threads", fs.Lookup("max-threads")); err != nil {
		t.Fatal(err)
	}
	if err := fs.Parse([]string{"--max-threads=7"}); err != nil {
		t.Fatal(err)
	}
	if got := GetInt("max-threads"); got != 7 {
		t.Errorf("max-threads = %d, want 7", got)
	}
}

func TestUninitializedGetters(t *testing.T) {
	ResetForTesting()
	t.Cleanup(func() { _ = Initialize() })

	if GetString("server-url") != "" || GetBool("ssl-verify") || GetInt("max-threads") != 0 ||
		GetDuration("read-timeout") != 0 || GetStringSlice("models") != nil {
		t.Error("getters should return zero values before Initialize")
	}
}

func TestCredentials(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		complete bool
	}{
		{"token", map[string]string{"BBS_SERVER_URL": "https://bbs.example.com/", "BBS_TOKEN": "t"}, true},
		{"basic", map[string]string{"BBS_SERVER_URL": "https://bbs.example.com", "BBS_USERNAME": "u", "BBS_PASSWORD": "p"}, true},
		{"missing password", map[string]string{"BBS_SERVER_URL": "https://bbs.example.com", "BBS_USERNAME": "u"}, false},
		{"missing url", map[string]string{"BBS_TOKEN": "t"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, val := range tt.env {
				t.Setenv(k, val)
			}
			if err := Initialize(); err != nil {
				t.Fatal(err)
			}
			c := GetCredentials()
			if c.Complete() != tt.complete {
				t.Errorf("Complete() = %v, want %v (%+v)", c.Complete(), tt.complete, c)
			}
			if c.ServerURL != "" && c.ServerURL != "https://bbs.example.com" {
				t.Errorf("ServerURL = %q, trailing slash should be trimmed", c.ServerURL)
			}
		})
	}
}

func TestSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		if err := Initialize(); err != nil {
			t.Fatal(err)
		}
		s := getSettings(&bytes.Buffer{})
		if s.MaxThreads != DefaultMaxThreads {
			t.Errorf("MaxThreads = %d", s.MaxThreads)
		}
		for _, m := range OptionalModels {
			if !s.HasModel(m) {
				t.Errorf("model %s should be selected by default", m)
			}
		}
	})

	t.Run("models from env", func(t *testing.T) {
		t.Setenv("BBS_MODELS", "teams, Pull_Requests,bogus,teams")
		if err := Initialize(); err != nil {
			t.Fatal(err)
		}
		var warn bytes.Buffer
		s := getSettings(&warn)
		if len(s.Models) != 2 || s.Models[0] != "teams" || s.Models[1] != "pull_requests" {
			t.Errorf("Models = %v", s.Models)
		}
		if !bytes.Contains(warn.Bytes(), []byte(`unknown model "bogus"`)) {
			t.Errorf("expected warning about bogus model, got %q", warn.String())
		}
	})

	t.Run("no models", func(t *testing.T) {
		if err := Initialize(); err != nil {
			t.Fatal(err)
		}
		Set("models", []string{})
		s := getSettings(&bytes.Buffer{})
		if len(s.Models) != 0 {
			t.Errorf("Models = %v, want none", s.Models)
		}
	})

	t.Run("invalid threads", func(t *testing.T) {
		t.Setenv("BBS_MAX_THREADS", "0")
		if err := Initialize(); err != nil {
			t.Fatal(err)
		}
		var warn bytes.Buffer
		s := getSettings(&warn)
		if s.MaxThreads != DefaultMaxThreads {
			t.Errorf("MaxThreads = %d, want %d", s.MaxThreads, DefaultMaxThreads)
		}
		if warn.Len() == 0 {
			t.Error("expected a warning")
		}
	})
}
