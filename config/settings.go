package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Settings holds user-level state: the project registry and service
// parameters. It is loaded from an explicit path so callers inject it
// rather than reaching for process-wide globals.
type Settings struct {
	Projects    map[string]string `yaml:"projects"`
	ServicePort int               `yaml:"service_port,omitempty"`
	MaxWorkers  int               `yaml:"max_workers,omitempty"`

	path string
	mu   sync.Mutex
}

// LoadSettings reads settings from path, creating a default file if none
// exists yet.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{
		Projects: make(map[string]string),
		path:     path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := s.Save(); err != nil {
				return nil, err
			}
			return s, nil
		}
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if s.Projects == nil {
		s.Projects = make(map[string]string)
	}
	s.path = path
	return s, nil
}

// Save writes the settings back to the path they were loaded from.
func (s *Settings) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("write settings %s: %w", s.path, err)
	}
	return nil
}

// Register records a project name -> directory mapping. Re-registering the
// same name with a different path is an error; unregister first.
func (s *Settings) Register(name, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.Projects[name]; ok && existing != path {
		return fmt.Errorf("project %q already registered at %s; unregister it first", name, existing)
	}
	s.Projects[name] = path
	return nil
}

// Unregister removes a project from the registry.
func (s *Settings) Unregister(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Projects[name]; !ok {
		return fmt.Errorf("project %q is not registered", name)
	}
	delete(s.Projects, name)
	return nil
}

// ProjectPath resolves a project name to its directory. A name that is not
// registered is also tried as a literal path containing a geoengine.yaml.
func (s *Settings) ProjectPath(name string) (string, error) {
	s.mu.Lock()
	path, ok := s.Projects[name]
	s.mu.Unlock()
	if ok {
		return path, nil
	}

	if _, err := os.Stat(filepath.Join(name, ProjectFileName)); err == nil {
		abs, err := filepath.Abs(name)
		if err != nil {
			return "", err
		}
		return abs, nil
	}

	return "", fmt.Errorf("project %q not found; register it with: geoengine project register <path>", name)
}

// ProjectEntry is one registered project.
type ProjectEntry struct {
	Name string
	Path string
}

// ListProjects returns registered projects sorted by name.
func (s *Settings) ListProjects() []ProjectEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]ProjectEntry, 0, len(s.Projects))
	for name, path := range s.Projects {
		entries = append(entries, ProjectEntry{Name: name, Path: path})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}
