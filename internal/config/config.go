// Package config holds gimport's configuration: a viper singleton fed by
// defaults, an optional config.yaml and GIMPORT_* environment variables.
//
// Lookup order for config.yaml: .gimport/config.yaml in the working directory
// or any parent, then $XDG_CONFIG_HOME/gimport/config.yaml (or
// ~/.config/gimport/config.yaml). Environment variables win over the file;
// dots and dashes in keys become underscores (remote.timeout ->
// GIMPORT_REMOTE_TIMEOUT).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DirName is the per-project configuration and state directory.
const DirName = ".gimport"

// Configuration keys.
const (
	KeyDataDir    = "data-dir"
	KeyLockDir    = "lock-dir"
	KeyActor      = "actor"
	KeyJSON       = "json"
	KeyStore      = "store"
	KeyDoltPath   = "dolt.path"
	KeyDoltDB     = "dolt.database"
	KeyDoltHost   = "dolt.server-host"
	KeyDoltPort   = "dolt.server-port"
	KeyDoltUser   = "dolt.server-user"
	KeyDoltTLS    = "dolt.server-tls"
	KeyCacheSize  = "cache.size"
	KeyGitBase    = "git.base-path"
	KeySSLVerify  = "git.ssl-verify"
	KeyTimeout    = "remote.timeout"
	KeyPageSize   = "remote.page-size"
	KeyCreateAcct = "accounts.create-missing"
	KeyVisible    = "groups.new-groups-visible-to-all"
	KeyPolicyFile = "groups.policy-file"
	KeyWorkers    = "scheduler.workers"
)

var v *viper.Viper

// Initialize (re)builds the configuration singleton. It is safe to call more
// than once; each call starts from defaults.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("GIMPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	path := findConfigFile()
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyDataDir, "")
	v.SetDefault(KeyLockDir, "")
	v.SetDefault(KeyActor, "")
	v.SetDefault(KeyJSON, false)
	v.SetDefault(KeyStore, "dolt")
	v.SetDefault(KeyDoltPath, "")
	v.SetDefault(KeyDoltDB, "gimport")
	v.SetDefault(KeyDoltHost, "127.0.0.1")
	v.SetDefault(KeyDoltPort, 3307)
	v.SetDefault(KeyDoltUser, "root")
	v.SetDefault(KeyDoltTLS, false)
	v.SetDefault(KeyCacheSize, 1024)
	v.SetDefault(KeyGitBase, "")
	v.SetDefault(KeySSLVerify, false)
	v.SetDefault(KeyTimeout, 30*time.Second)
	v.SetDefault(KeyPageSize, 0)
	v.SetDefault(KeyCreateAcct, true)
	v.SetDefault(KeyVisible, false)
	v.SetDefault(KeyPolicyFile, "")
	v.SetDefault(KeyWorkers, 4)
}

// findConfigFile walks up from the working directory looking for
// .gimport/config.yaml, then falls back to the user config directory.
func findConfigFile() string {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; ; dir = filepath.Dir(dir) {
			p := filepath.Join(dir, DirName, "config.yaml")
			if _, err := os.Stat(p); err == nil {
				return p
			}
			if dir == filepath.Dir(dir) {
				break
			}
		}
	}
	if dir, err := os.UserConfigDir(); err == nil {
		p := filepath.Join(dir, "gimport", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// ResetForTesting drops the singleton so tests start clean.
func ResetForTesting() {
	v = nil
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice retrieves a string slice configuration value
func GetStringSlice(key string) []string {
	if v == nil {
		return []string{}
	}
	return v.GetStringSlice(key)
}

// Set sets a configuration value. It is a no-op before Initialize.
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// IsSet reports whether key has a value. Defaults count.
func IsSet(key string) bool {
	return v != nil && v.IsSet(key)
}

// AllSettings returns every setting as a nested map.
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// DataDir is where gimport keeps its state: the default repository, lock
// and database locations plus the import log.
func DataDir() string {
	if d := GetString(KeyDataDir); d != "" {
		return d
	}
	return DirName
}

// LockDir holds one import lock artifact per project.
func LockDir() string {
	if d := GetString(KeyLockDir); d != "" {
		return d
	}
	return filepath.Join(DataDir(), "import_projects")
}

// GitBasePath holds the imported bare repositories.
func GitBasePath() string {
	if d := GetString(KeyGitBase); d != "" {
		return d
	}
	return filepath.Join(DataDir(), "git")
}

// DoltPath is the embedded Dolt database directory.
func DoltPath() string {
	if d := GetString(KeyDoltPath); d != "" {
		return d
	}
	return filepath.Join(DataDir(), "dolt")
}
