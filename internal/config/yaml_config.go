package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// KnownKeys lists every key `gimport config set` accepts.
var KnownKeys = map[string]bool{
	KeyDataDir:    true,
	KeyLockDir:    true,
	KeyActor:      true,
	KeyJSON:       true,
	KeyStore:      true,
	KeyDoltPath:   true,
	KeyDoltDB:     true,
	KeyDoltHost:   true,
	KeyDoltPort:   true,
	KeyDoltUser:   true,
	KeyDoltTLS:    true,
	KeyCacheSize:  true,
	KeyGitBase:    true,
	KeySSLVerify:  true,
	KeyTimeout:    true,
	KeyPageSize:   true,
	KeyCreateAcct: true,
	KeyVisible:    true,
	KeyPolicyFile: true,
	KeyWorkers:    true,
}

// SortedKeys returns KnownKeys in order.
func SortedKeys() []string {
	keys := make([]string, 0, len(KnownKeys))
	for k := range KnownKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetYamlConfig writes key to the nearest .gimport/config.yaml, creating
// one in the working directory when none exists. Existing (possibly
// commented) entries are updated in place. Keys are written flat, so nested
// keys keep their dotted form.
func SetYamlConfig(key, value string) (string, error) {
	if !KnownKeys[key] {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	configPath, err := projectConfigYaml()
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(configPath) // #nosec G304 - path from projectConfigYaml
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read config.yaml: %w", err)
	}

	newContent := updateYamlKey(string(content), key, value)
	if err := os.WriteFile(configPath, []byte(newContent+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to write config.yaml: %w", err)
	}
	return configPath, nil
}

// projectConfigYaml returns the config file Initialize would load from the
// working directory tree, or a new one under the working directory.
func projectConfigYaml() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		configPath := filepath.Join(dir, DirName, "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
	}
	dir := filepath.Join(cwd, DirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// updateYamlKey replaces the line holding key, commented out or not, or
// appends a new one.
func updateYamlKey(content, key, value string) string {
	newLine := fmt.Sprintf("%s: %s", key, formatYamlValue(value))
	keyPattern := regexp.MustCompile(`^(\s*)(#\s*)?` + regexp.QuoteMeta(key) + `\s*:`)

	found := false
	var result []string
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if m := keyPattern.FindStringSubmatch(line); m != nil && !found {
			result = append(result, m[1]+newLine)
			found = true
			continue
		}
		result = append(result, line)
	}
	if !found {
		result = append(result, newLine)
	}
	return strings.TrimRight(strings.Join(result, "\n"), "\n")
}

// formatYamlValue quotes value unless it reads as a bool, number or
// duration.
func formatYamlValue(value string) string {
	lower := strings.ToLower(value)
	if lower == "true" || lower == "false" {
		return lower
	}
	if isNumeric(value) || isDuration(value) {
		return value
	}
	if value == "" || strings.TrimSpace(value) != value || strings.ContainsAny(value, ":#[]{},&*!|>'\"%@`") {
		return fmt.Sprintf("%q", value)
	}
	return value
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if (c == '-' && i == 0) || c == '.' {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isDuration(s string) bool {
	if len(s) < 2 {
		return false
	}
	switch s[len(s)-1] {
	case 's', 'm', 'h':
		return isNumeric(s[:len(s)-1])
	}
	return false
}
