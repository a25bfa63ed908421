package profiles

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ardaguler/kvmigrate/internal/config"
)

const defaultDir = "configs"

var fileNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9-_]`)

// Profile is a saved migration configuration.
type Profile struct {
	Name     string
	Path     string
	Modified time.Time
}

// Manager discovers and persists migration profiles under a directory.
type Manager struct {
	dir string
}

func NewManager(dir string) *Manager {
	if strings.TrimSpace(dir) == "" {
		dir = defaultDir
	}
	return &Manager{dir: dir}
}

func (m *Manager) Directory() string {
	return m.dir
}

// List returns every readable profile in the directory.
func (m *Manager) List() ([]Profile, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var profiles []Profile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !isYAML(name) {
			continue
		}
		path := filepath.Join(m.dir, name)
		if _, err := config.LoadConfig(path); err != nil {
			continue
		}
		info, err := entry.Info()
		profiles = append(profiles, Profile{
			Name:     strings.TrimSuffix(name, filepath.Ext(name)),
			Path:     path,
			Modified: modifiedTime(info, err),
		})
	}

	return profiles, nil
}

// Save persists the config under the given alias.
func (m *Manager) Save(alias string, cfg *config.Config) (Profile, error) {
	if cfg == nil {
		return Profile{}, fmt.Errorf("config cannot be nil")
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Profile{}, err
	}

	base := sanitizeName(strings.TrimSpace(alias))
	if !isYAML(base) {
		base += ".yaml"
	}

	path := filepath.Join(m.dir, base)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return Profile{}, err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Profile{}, err
	}

	return Profile{
		Name:     strings.TrimSuffix(base, filepath.Ext(base)),
		Path:     path,
		Modified: time.Now(),
	}, nil
}

// Load reads a profile by alias or file path.
func (m *Manager) Load(alias string) (*config.Config, error) {
	if strings.TrimSpace(alias) == "" {
		return nil, fmt.Errorf("profile alias cannot be empty")
	}

	path := alias
	if !strings.ContainsRune(alias, os.PathSeparator) {
		path = filepath.Join(m.dir, ensureYAMLExt(alias))
	}

	return config.LoadConfig(path)
}

func (m *Manager) Delete(alias string) error {
	if strings.TrimSpace(alias) == "" {
		return fmt.Errorf("profile alias cannot be empty")
	}

	path := alias
	if !strings.ContainsRune(alias, os.PathSeparator) {
		path = filepath.Join(m.dir, ensureYAMLExt(alias))
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("profile not found: %s", alias)
	}

	return os.Remove(path)
}

func isYAML(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}

func ensureYAMLExt(name string) string {
	if isYAML(name) {
		return name
	}
	return name + ".yaml"
}

func modifiedTime(info os.FileInfo, err error) time.Time {
	if err != nil || info == nil {
		return time.Time{}
	}
	return info.ModTime()
}

func sanitizeName(input string) string {
	cleaned := fileNameSanitizer.ReplaceAllString(input, "_")
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		return "profile"
	}
	return cleaned
}
