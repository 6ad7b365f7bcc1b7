package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	cfgDir := filepath.Join(dir, DirName)
	if err := os.MkdirAll(cfgDir, 0750); err != nil {
		t.Fatalf("failed to create %s: %v", cfgDir, err)
	}
	path := filepath.Join(cfgDir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
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
	t.Chdir(t.TempDir())
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	tests := []struct {
		key      string
		expected interface{}
		getter   func(string) interface{}
	}{
		{KeyStore, "dolt", func(k string) interface{} { return GetString(k) }},
		{KeyDoltDB, "gimport", func(k string) interface{} { return GetString(k) }},
		{KeyDoltPort, 3307, func(k string) interface{} { return GetInt(k) }},
		{KeySSLVerify, false, func(k string) interface{} { return GetBool(k) }},
		{KeyTimeout, 30 * time.Second, func(k string) interface{} { return GetDuration(k) }},
		{KeyCreateAcct, true, func(k string) interface{} { return GetBool(k) }},
		{KeyVisible, false, func(k string) interface{} { return GetBool(k) }},
		{KeyWorkers, 4, func(k string) interface{} { return GetInt(k) }},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := tt.getter(tt.key); got != tt.expected {
				t.Errorf("GetXXX(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}

	if got := LockDir(); got != filepath.Join(DirName, "import_projects") {
		t.Errorf("LockDir() = %q", got)
	}
	if got := GitBasePath(); got != filepath.Join(DirName, "git") {
		t.Errorf("GitBasePath() = %q", got)
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
		{"GIMPORT_STORE", KeyStore, "memory", "memory", func(k string) interface{} { return GetString(k) }},
		{"GIMPORT_REMOTE_TIMEOUT", KeyTimeout, "10s", 10 * time.Second, func(k string) interface{} { return GetDuration(k) }},
		{"GIMPORT_GIT_SSL_VERIFY", KeySSLVerify, "true", true, func(k string) interface{} { return GetBool(k) }},
		{"GIMPORT_GROUPS_NEW_GROUPS_VISIBLE_TO_ALL", KeyVisible, "true", true, func(k string) interface{} { return GetBool(k) }},
		{"GIMPORT_DATA_DIR", KeyDataDir, "/srv/gimport", "/srv/gimport", func(k string) interface{} { return GetString(k) }},
	}
	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)
			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() returned error: %v", err)
			}
			if got := tt.getter(tt.key); got != tt.expected {
				t.Errorf("GetXXX(%q) with %s=%s = %v, want %v", tt.key, tt.envVar, tt.value, got, tt.expected)
			}
		})
	}
}

func TestConfigFileDiscoveredFromSubdirectory(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeConfig(t, tmpDir, `
store: memory
remote:
  timeout: 15s
groups:
  policy-file: /etc/gimport/policy.yaml
`)
	sub := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(sub, 0750); err != nil {
		t.Fatal(err)
	}
	t.Chdir(sub)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetString(KeyStore); got != "memory" {
		t.Errorf("GetString(store) = %q", got)
	}
	if got := GetDuration(KeyTimeout); got != 15*time.Second {
		t.Errorf("GetDuration(remote.timeout) = %v", got)
	}
	if got := GetString(KeyPolicyFile); got != "/etc/gimport/policy.yaml" {
		t.Errorf("GetString(groups.policy-file) = %q", got)
	}
	if got, _ := filepath.EvalSymlinks(ConfigFileUsed()); got != mustEval(t, path) {
		t.Errorf("ConfigFileUsed() = %q, want %q", got, path)
	}
}

func mustEval(t *testing.T, p string) string {
	t.Helper()
	out, err := filepath.EvalSymlinks(p)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestConfigPrecedence(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "store: memory\n")
	t.Chdir(tmpDir)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetString(KeyStore); got != "memory" {
		t.Errorf("GetString(store) from config file = %q, want memory", got)
	}

	t.Setenv("GIMPORT_STORE", "dolt-server")
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetString(KeyStore); got != "dolt-server" {
		t.Errorf("GetString(store) with env var = %q, want dolt-server (env should override config)", got)
	}
}

func TestSetAndGet(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	Set("test-key", "test-value")
	if got := GetString("test-key"); got != "test-value" {
		t.Errorf("GetString(test-key) = %q, want \"test-value\"", got)
	}
	Set(KeyLockDir, "/tmp/locks")
	if got := LockDir(); got != "/tmp/locks" {
		t.Errorf("LockDir() = %q", got)
	}
	if settings := AllSettings(); settings["test-key"] != "test-value" {
		t.Errorf("AllSettings() missing test-key: %v", settings)
	}
}

func TestNilViperBehavior(t *testing.T) {
	savedV := v
	v = nil
	defer func() { v = savedV }()

	if got := GetString("any-key"); got != "" {
		t.Errorf("GetString with nil viper = %q, want \"\"", got)
	}
	if got := GetBool("any-key"); got != false {
		t.Errorf("GetBool with nil viper = %v, want false", got)
	}
	if got := GetInt("any-key"); got != 0 {
		t.Errorf("GetInt with nil viper = %d, want 0", got)
	}
	if got := GetDuration("any-key"); got != 0 {
		t.Errorf("GetDuration with nil viper = %v, want 0", got)
	}
	if got := GetStringSlice("any-key"); got == nil || len(got) != 0 {
		t.Errorf("GetStringSlice with nil viper = %v, want empty slice", got)
	}
	if got := AllSettings(); got == nil || len(got) != 0 {
		t.Errorf("AllSettings with nil viper = %v, want empty map", got)
	}
	if IsSet("any-key") || ConfigFileUsed() != "" {
		t.Error("nil viper reports state")
	}
	Set("any-key", "any-value") // no-op
	if got := DataDir(); got != DirName {
		t.Errorf("DataDir with nil viper = %q", got)
	}
}

func TestSetYamlConfig(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeConfig(t, tmpDir, "# store: dolt\nremote.timeout: 30s\n")
	t.Chdir(tmpDir)

	if _, err := SetYamlConfig(KeyStore, "memory"); err != nil {
		t.Fatalf("SetYamlConfig(store): %v", err)
	}
	if _, err := SetYamlConfig(KeyPolicyFile, "/etc/policy.yaml"); err != nil {
		t.Fatalf("SetYamlConfig(policy): %v", err)
	}
	if _, err := SetYamlConfig("no-such-key", "x"); err == nil {
		t.Error("SetYamlConfig accepted an unknown key")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "store: memory\nremote.timeout: 30s\ngroups.policy-file: /etc/policy.yaml\n"
	if string(data) != want {
		t.Errorf("config.yaml =\n%s\nwant\n%s", data, want)
	}

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetString(KeyPolicyFile); got != "/etc/policy.yaml" {
		t.Errorf("GetString(groups.policy-file) after set = %q", got)
	}
}

func TestSetYamlConfigCreatesFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	path, err := SetYamlConfig(KeySSLVerify, "TRUE")
	if err != nil {
		t.Fatalf("SetYamlConfig: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "git.ssl-verify: true\n" {
		t.Errorf("config.yaml = %q", data)
	}
}

func TestFormatYamlValue(t *testing.T) {
	tests := map[string]string{
		"true":     "true",
		"42":       "42",
		"1m":       "1m",
		"plain":    "plain",
		"a: b":     `"a: b"`,
		" padded ": `" padded "`,
		"":         `""`,
	}
	for in, want := range tests {
		if got := formatYamlValue(in); got != want {
			t.Errorf("formatYamlValue(%q) = %q, want %q", in, got, want)
		}
	}
}
