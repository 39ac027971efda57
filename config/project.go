// Package config loads project and user-level GeoEngine configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectFileName is the per-project configuration file.
const ProjectFileName = "geoengine.yaml"

// ProjectConfig describes a project: its image, scripts, runtime defaults,
// and declared GIS tools. It is immutable once loaded.
type ProjectConfig struct {
	Name      string            `yaml:"name"`
	Version   string            `yaml:"version,omitempty"`
	BaseImage string            `yaml:"base_image,omitempty"`
	Build     *BuildConfig      `yaml:"build,omitempty"`
	Scripts   map[string]string `yaml:"scripts,omitempty"`
	Runtime   *RuntimeConfig    `yaml:"runtime,omitempty"`
	GIS       *GISConfig        `yaml:"gis,omitempty"`
}

// BuildConfig holds Docker image build settings.
type BuildConfig struct {
	Dockerfile string            `yaml:"dockerfile,omitempty"`
	Context    string            `yaml:"context,omitempty"`
	Args       map[string]string `yaml:"args,omitempty"`
}

// RuntimeConfig holds container runtime defaults for a project.
type RuntimeConfig struct {
	GPU         bool              `yaml:"gpu,omitempty"`
	Memory      string            `yaml:"memory,omitempty"`
	CPUs        float64           `yaml:"cpus,omitempty"`
	ShmSize     string            `yaml:"shm_size,omitempty"`
	WorkDir     string            `yaml:"workdir,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Mounts      []MountConfig     `yaml:"mounts,omitempty"`
}

// MountConfig declares a host path bound into the container.
// Host paths starting with "./" are resolved against the project directory.
type MountConfig struct {
	Host      string `yaml:"host"`
	Container string `yaml:"container"`
	ReadOnly  bool   `yaml:"readonly,omitempty"`
}

// GISConfig groups the GIS-facing tool declarations.
type GISConfig struct {
	Tools []ToolDefinition `yaml:"tools,omitempty"`
}

// ToolDefinition declares a named operation backed by a project script.
type ToolDefinition struct {
	Name        string                `yaml:"name"`
	Label       string                `yaml:"label,omitempty"`
	Description string                `yaml:"description,omitempty"`
	Script      string                `yaml:"script"`
	Inputs      []ParameterDefinition `yaml:"inputs,omitempty"`
	Outputs     []ParameterDefinition `yaml:"outputs,omitempty"`
}

// ParameterDefinition describes one tool parameter.
type ParameterDefinition struct {
	Name        string   `yaml:"name"`
	Label       string   `yaml:"label,omitempty"`
	MapTo       string   `yaml:"map_to,omitempty"`
	Type        string   `yaml:"type,omitempty"`
	Required    *bool    `yaml:"required,omitempty"`
	Default     any      `yaml:"default,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Choices     []string `yaml:"choices,omitempty"`
}

// IsRequired reports whether the parameter is required. Unset means required.
func (p *ParameterDefinition) IsRequired() bool {
	return p.Required == nil || *p.Required
}

// Flag returns the destination flag name for the parameter: map_to when
// present, else the parameter name.
func (p *ParameterDefinition) Flag() string {
	if p.MapTo != "" {
		return p.MapTo
	}
	return p.Name
}

// LoadProject reads and parses a geoengine.yaml file.
func LoadProject(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project config %s: %w", path, err)
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse project config %s: %w", path, err)
	}

	if cfg.Name == "" {
		return nil, fmt.Errorf("project config %s: missing required field 'name'", path)
	}

	return &cfg, nil
}

// LoadProjectDir loads the geoengine.yaml inside a project directory.
func LoadProjectDir(dir string) (*ProjectConfig, error) {
	return LoadProject(filepath.Join(dir, ProjectFileName))
}

// ImageTag returns the Docker image tag built for the project.
func (c *ProjectConfig) ImageTag() string {
	return fmt.Sprintf("geoengine-%s:latest", c.Name)
}

// Script returns the command template for a named script.
func (c *ProjectConfig) Script(name string) (string, bool) {
	cmd, ok := c.Scripts[name]
	return cmd, ok
}

// Tool returns the tool definition with the given name.
func (c *ProjectConfig) Tool(name string) (*ToolDefinition, bool) {
	if c.GIS == nil {
		return nil, false
	}
	for i := range c.GIS.Tools {
		if c.GIS.Tools[i].Name == name {
			return &c.GIS.Tools[i], true
		}
	}
	return nil, false
}

// Tools returns the declared tool definitions, or nil if none.
func (c *ProjectConfig) Tools() []ToolDefinition {
	if c.GIS == nil {
		return nil
	}
	return c.GIS.Tools
}

// Template returns a starter configuration for a new project.
func Template(name string) *ProjectConfig {
	return &ProjectConfig{
		Name:      name,
		Version:   "0.1.0",
		BaseImage: "python:3.11-slim",
		Build: &BuildConfig{
			Dockerfile: "Dockerfile",
			Context:    ".",
		},
		Scripts: map[string]string{
			"default": "python main.py",
		},
		Runtime: &RuntimeConfig{
			GPU:     false,
			Memory:  "4g",
			WorkDir: "/app",
		},
	}
}
