package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/geoengine/geoengine/config"
)

// ErrInvalidInput marks malformed parameters and unresolved tool or script
// references. Callers test for it with errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// OutputContainerPath is where a job's output directory is mounted.
const OutputContainerPath = "/output"

// OutputEnvVar names the environment variable pointing at the mounted
// output directory inside the container.
const OutputEnvVar = "GEOENGINE_OUTPUT_DIR"

// GPUInfo reports the devices found by a capability probe.
type GPUInfo struct {
	Devices []string
}

// GPUProbe detects GPU capability on the host. Probes are best-effort: a
// failed or empty detection means the plan simply omits GPU devices.
type GPUProbe interface {
	Detect(ctx context.Context) (GPUInfo, error)
}

// Request carries everything needed to build one execution plan.
type Request struct {
	// Tool names a declared GIS tool; when set it resolves the script and
	// the input flag mapping. Otherwise Script names a project script.
	Tool   string
	Script string

	// Inputs are raw KEY=VALUE parameters.
	Inputs []string

	// Args are pre-built arguments appended verbatim (escaped) after any
	// inputs; used by the plain script-run path.
	Args []string

	OutputDir   string
	ExtraMounts []Mount
	ExtraEnv    map[string]string

	// JSONMode disables the TTY so container output can be captured cleanly.
	JSONMode bool
}

// Builder converts tool/script references plus raw parameters into execution
// plans for one project.
type Builder struct {
	cfg         *config.ProjectConfig
	projectPath string
	probe       GPUProbe
}

// NewBuilder creates a Builder for a loaded project. probe may be nil when
// GPU detection is unavailable.
func NewBuilder(cfg *config.ProjectConfig, projectPath string, probe GPUProbe) *Builder {
	return &Builder{cfg: cfg, projectPath: projectPath, probe: probe}
}

// Build resolves the request into an immutable Plan. Validation failures
// wrap ErrInvalidInput; filesystem failures are returned with path context.
func (b *Builder) Build(ctx context.Context, req Request) (*Plan, error) {
	scriptCmd, err := b.resolveScript(req)
	if err != nil {
		return nil, err
	}

	inputs, err := parseInputs(req.Inputs)
	if err != nil {
		return nil, err
	}

	mounts, err := b.projectMounts()
	if err != nil {
		return nil, err
	}

	env := make(map[string]string)
	if b.cfg.Runtime != nil {
		for k, v := range b.cfg.Runtime.Environment {
			env[k] = v
		}
	}

	args, inputMounts, err := b.inputArgs(req.Tool, inputs)
	if err != nil {
		return nil, err
	}
	mounts = append(mounts, inputMounts...)

	if req.OutputDir != "" {
		absOut, err := ensureOutputDir(req.OutputDir)
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, Mount{Host: absOut, Container: OutputContainerPath, ReadOnly: false})
		env[OutputEnvVar] = OutputContainerPath
	}

	// Request-supplied extras win on collision.
	mounts = append(mounts, req.ExtraMounts...)
	mounts = dedupeMounts(mounts)
	for k, v := range req.ExtraEnv {
		env[k] = v
	}

	args = append(args, req.Args...)
	full := scriptCmd
	if len(args) > 0 {
		escaped := make([]string, len(args))
		for i, a := range args {
			escaped[i] = shellEscape(a)
		}
		full = scriptCmd + " " + strings.Join(escaped, " ")
	}

	plan := &Plan{
		Image:      b.cfg.ImageTag(),
		Command:    []string{"/bin/sh", "-c", full},
		Env:        env,
		Mounts:     mounts,
		TTY:        !req.JSONMode,
		AutoRemove: true,
	}
	if rt := b.cfg.Runtime; rt != nil {
		plan.Memory = rt.Memory
		plan.CPUs = rt.CPUs
		plan.ShmSize = rt.ShmSize
		plan.WorkDir = rt.WorkDir

		if rt.GPU && b.probe != nil {
			if info, err := b.probe.Detect(ctx); err == nil {
				plan.GPUDevices = info.Devices
			}
		}
	}

	return plan, nil
}

// resolveScript maps the request to a script command template.
func (b *Builder) resolveScript(req Request) (string, error) {
	name := req.Script
	if req.Tool != "" {
		tool, ok := b.cfg.Tool(req.Tool)
		if !ok {
			return "", fmt.Errorf("%w: tool %q not found in project %q", ErrInvalidInput, req.Tool, b.cfg.Name)
		}
		name = tool.Script
	}
	if name == "" {
		name = "default"
	}

	cmd, ok := b.cfg.Script(name)
	if !ok {
		return "", fmt.Errorf("%w: script %q not found in project %q", ErrInvalidInput, name, b.cfg.Name)
	}
	return cmd, nil
}

// parseInputs splits KEY=VALUE tokens into a map. Later occurrences of a key
// win, which is deterministic because the token list is ordered.
func parseInputs(raw []string) (map[string]string, error) {
	inputs := make(map[string]string, len(raw))
	for _, token := range raw {
		key, value, ok := strings.Cut(token, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q is not of the form KEY=VALUE", ErrInvalidInput, token)
		}
		inputs[key] = value
	}
	return inputs, nil
}

// inputArgs builds the --flag value argument list in sorted key order,
// rewriting file and directory values to in-container paths and collecting
// the read-only mounts they need. Map iteration order must never reach the
// command line.
func (b *Builder) inputArgs(toolName string, inputs map[string]string) ([]string, []Mount, error) {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var tool *config.ToolDefinition
	if toolName != "" {
		tool, _ = b.cfg.Tool(toolName)
	}

	var (
		args       []string
		mounts     []Mount
		dirIndex   int
		fileOwners = make(map[string]string) // base name -> owning key
	)

	for _, key := range keys {
		value := inputs[key]
		flag := key
		if tool != nil {
			for i := range tool.Inputs {
				if tool.Inputs[i].Name == key {
					flag = tool.Inputs[i].Flag()
					break
				}
			}
		}

		containerValue := value
		if info, err := os.Stat(value); err == nil {
			abs, err := filepath.Abs(value)
			if err != nil {
				return nil, nil, fmt.Errorf("resolve input path %s: %w", value, err)
			}
			abs, err = filepath.EvalSymlinks(abs)
			if err != nil {
				return nil, nil, fmt.Errorf("resolve input path %s: %w", value, err)
			}

			switch {
			case info.Mode().IsRegular():
				base := filepath.Base(abs)
				containerValue = "/inputs/" + base
				// Two keys carrying files with the same base name would
				// collide on the mount target; qualify by key.
				if owner, taken := fileOwners[base]; taken && owner != key {
					containerValue = "/inputs/" + key + "/" + base
				} else {
					fileOwners[base] = key
				}
				mounts = append(mounts, Mount{Host: abs, Container: containerValue, ReadOnly: true})
			case info.IsDir():
				containerValue = fmt.Sprintf("/mnt/input_%d", dirIndex)
				dirIndex++
				mounts = append(mounts, Mount{Host: abs, Container: containerValue, ReadOnly: true})
			}
		}

		args = append(args, "--"+flag, containerValue)
	}

	return args, mounts, nil
}

// projectMounts resolves the mounts declared in the project runtime config.
// Missing host paths are a build-time error.
func (b *Builder) projectMounts() ([]Mount, error) {
	if b.cfg.Runtime == nil {
		return nil, nil
	}

	var mounts []Mount
	for _, m := range b.cfg.Runtime.Mounts {
		host := m.Host
		if strings.HasPrefix(host, "./") {
			host = filepath.Join(b.projectPath, host[2:])
		}
		abs, err := filepath.Abs(host)
		if err != nil {
			return nil, fmt.Errorf("resolve mount path %s: %w", m.Host, err)
		}
		abs, err = filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("resolve mount path %s: %w", m.Host, err)
		}
		mounts = append(mounts, Mount{Host: abs, Container: m.Container, ReadOnly: m.ReadOnly})
	}
	return mounts, nil
}

// ensureOutputDir creates the output directory if absent and returns its
// canonical absolute path.
func ensureOutputDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory %s: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve output directory %s: %w", dir, err)
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve output directory %s: %w", dir, err)
	}
	return abs, nil
}

// dedupeMounts keeps the last mount declared for each container path, so
// request-supplied mounts override project defaults.
func dedupeMounts(mounts []Mount) []Mount {
	last := make(map[string]int, len(mounts))
	for i, m := range mounts {
		last[m.Container] = i
	}
	out := mounts[:0]
	for i, m := range mounts {
		if last[m.Container] == i {
			out = append(out, m)
		}
	}
	return out
}
