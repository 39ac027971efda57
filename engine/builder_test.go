package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoengine/geoengine/config"
)

// tempDir returns a canonical temp directory so built mount paths compare
// cleanly on hosts where the temp root is a symlink.
func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func writeFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
	return path
}

func testConfig() *config.ProjectConfig {
	required := false
	return &config.ProjectConfig{
		Name: "terrain",
		Scripts: map[string]string{
			"default":   "python main.py",
			"hillshade": "python hillshade.py",
		},
		GIS: &config.GISConfig{
			Tools: []config.ToolDefinition{
				{
					Name:   "hillshade",
					Label:  "Hillshade",
					Script: "hillshade",
					Inputs: []config.ParameterDefinition{
						{Name: "dem", Type: "file"},
						{Name: "azimuth", Type: "number", Required: &required, MapTo: "sun-azimuth"},
					},
				},
			},
		},
	}
}

func build(t *testing.T, cfg *config.ProjectConfig, projectPath string, req Request) *Plan {
	t.Helper()
	plan, err := NewBuilder(cfg, projectPath, nil).Build(context.Background(), req)
	require.NoError(t, err)
	return plan
}

func command(plan *Plan) string {
	return plan.Command[2]
}

func TestBuildResolvesToolScript(t *testing.T) {
	plan := build(t, testConfig(), tempDir(t), Request{Tool: "hillshade"})

	assert.Equal(t, []string{"/bin/sh", "-c", "python hillshade.py"}, plan.Command)
	assert.Equal(t, "geoengine-terrain:latest", plan.Image)
	assert.True(t, plan.AutoRemove)
}

func TestBuildDefaultScript(t *testing.T) {
	plan := build(t, testConfig(), tempDir(t), Request{})
	assert.Equal(t, "python main.py", command(plan))
}

func TestBuildUnknownTool(t *testing.T) {
	_, err := NewBuilder(testConfig(), tempDir(t), nil).Build(context.Background(), Request{Tool: "slope"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBuildUnknownScript(t *testing.T) {
	_, err := NewBuilder(testConfig(), tempDir(t), nil).Build(context.Background(), Request{Script: "missing"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBuildMalformedInput(t *testing.T) {
	for _, bad := range []string{"noequals", "=value"} {
		_, err := NewBuilder(testConfig(), tempDir(t), nil).Build(context.Background(), Request{
			Tool:   "hillshade",
			Inputs: []string{bad},
		})
		assert.ErrorIs(t, err, ErrInvalidInput, "input %q", bad)
	}
}

func TestBuildInputsSortedByKey(t *testing.T) {
	plan := build(t, testConfig(), tempDir(t), Request{
		Tool:   "hillshade",
		Inputs: []string{"zfactor=2", "azimuth=315", "mode=fast"},
	})

	// Flags appear in sorted key order regardless of submission order, and
	// map_to renames the azimuth flag.
	assert.Equal(t,
		"python hillshade.py --sun-azimuth 315 --mode fast --zfactor 2",
		command(plan))
}

func TestBuildDuplicateKeyLastWins(t *testing.T) {
	plan := build(t, testConfig(), tempDir(t), Request{
		Tool:   "hillshade",
		Inputs: []string{"mode=fast", "mode=slow"},
	})
	assert.Equal(t, "python hillshade.py --mode slow", command(plan))
}

func TestBuildFileInputMounted(t *testing.T) {
	dir := tempDir(t)
	dem := writeFile(t, dir, "dem.tif")

	plan := build(t, testConfig(), dir, Request{
		Tool:   "hillshade",
		Inputs: []string{"dem=" + dem},
	})

	assert.Equal(t, "python hillshade.py --dem /inputs/dem.tif", command(plan))
	require.Len(t, plan.Mounts, 1)
	assert.Equal(t, Mount{Host: dem, Container: "/inputs/dem.tif", ReadOnly: true}, plan.Mounts[0])
}

func TestBuildDirectoryInputMounted(t *testing.T) {
	dir := tempDir(t)
	tiles := filepath.Join(dir, "tiles")
	require.NoError(t, os.Mkdir(tiles, 0755))

	plan := build(t, testConfig(), dir, Request{
		Tool:   "hillshade",
		Inputs: []string{"tiles=" + tiles},
	})

	assert.Equal(t, "python hillshade.py --tiles /mnt/input_0", command(plan))
	require.Len(t, plan.Mounts, 1)
	assert.Equal(t, Mount{Host: tiles, Container: "/mnt/input_0", ReadOnly: true}, plan.Mounts[0])
}

func TestBuildFileBaseNameCollision(t *testing.T) {
	dir := tempDir(t)
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.Mkdir(a, 0755))
	require.NoError(t, os.Mkdir(b, 0755))
	first := writeFile(t, a, "data.tif")
	second := writeFile(t, b, "data.tif")

	plan := build(t, testConfig(), dir, Request{
		Tool:   "hillshade",
		Inputs: []string{"dem=" + first, "mask=" + second},
	})

	// Keys are processed sorted: dem keeps the plain target, mask gets a
	// key-qualified one so the mounts don't collide.
	assert.Equal(t,
		"python hillshade.py --dem /inputs/data.tif --mask /inputs/mask/data.tif",
		command(plan))
}

func TestBuildNonPathValuePassedThrough(t *testing.T) {
	plan := build(t, testConfig(), tempDir(t), Request{
		Tool:   "hillshade",
		Inputs: []string{"dem=no/such/file.tif"},
	})

	assert.Equal(t, "python hillshade.py --dem no/such/file.tif", command(plan))
	assert.Empty(t, plan.Mounts)
}

func TestBuildOutputDir(t *testing.T) {
	dir := tempDir(t)
	out := filepath.Join(dir, "results")

	plan := build(t, testConfig(), dir, Request{Tool: "hillshade", OutputDir: out})

	// The directory is created, mounted read-write, and advertised via env.
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.Len(t, plan.Mounts, 1)
	assert.Equal(t, Mount{Host: out, Container: OutputContainerPath, ReadOnly: false}, plan.Mounts[0])
	assert.Equal(t, OutputContainerPath, plan.Env[OutputEnvVar])
}

func TestBuildEscapesArguments(t *testing.T) {
	plan := build(t, testConfig(), tempDir(t), Request{
		Tool:   "hillshade",
		Inputs: []string{"label=two words", "cmd=$(reboot)"},
	})

	cmd := command(plan)
	assert.Contains(t, cmd, "--label 'two words'")
	assert.Contains(t, cmd, "--cmd '$(reboot)'")
	assert.False(t, strings.Contains(cmd, "$(reboot) "), "metacharacters must not reach the shell unquoted")
}

func TestBuildJSONModeDisablesTTY(t *testing.T) {
	cfg := testConfig()
	dir := tempDir(t)

	assert.True(t, build(t, cfg, dir, Request{Tool: "hillshade"}).TTY)
	assert.False(t, build(t, cfg, dir, Request{Tool: "hillshade", JSONMode: true}).TTY)
}

func TestBuildProjectMounts(t *testing.T) {
	dir := tempDir(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "data"), 0755))

	cfg := testConfig()
	cfg.Runtime = &config.RuntimeConfig{
		Memory: "4g",
		CPUs:   2,
		Mounts: []config.MountConfig{
			{Host: "./data", Container: "/data", ReadOnly: true},
		},
	}

	plan := build(t, cfg, dir, Request{Tool: "hillshade"})

	require.Len(t, plan.Mounts, 1)
	assert.Equal(t, Mount{Host: filepath.Join(dir, "data"), Container: "/data", ReadOnly: true}, plan.Mounts[0])
	assert.Equal(t, "4g", plan.Memory)
	assert.Equal(t, 2.0, plan.CPUs)
}

func TestBuildMissingProjectMount(t *testing.T) {
	cfg := testConfig()
	cfg.Runtime = &config.RuntimeConfig{
		Mounts: []config.MountConfig{{Host: "./nope", Container: "/data"}},
	}

	_, err := NewBuilder(cfg, tempDir(t), nil).Build(context.Background(), Request{Tool: "hillshade"})
	require.Error(t, err)
}

func TestBuildExtrasOverride(t *testing.T) {
	dir := tempDir(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "data"), 0755))
	override := filepath.Join(dir, "override")
	require.NoError(t, os.Mkdir(override, 0755))

	cfg := testConfig()
	cfg.Runtime = &config.RuntimeConfig{
		Environment: map[string]string{"MODE": "project"},
		Mounts: []config.MountConfig{
			{Host: "./data", Container: "/data", ReadOnly: true},
		},
	}

	plan := build(t, cfg, dir, Request{
		Tool:        "hillshade",
		ExtraMounts: []Mount{{Host: override, Container: "/data"}},
		ExtraEnv:    map[string]string{"MODE": "request"},
	})

	require.Len(t, plan.Mounts, 1)
	assert.Equal(t, override, plan.Mounts[0].Host)
	assert.Equal(t, "request", plan.Env["MODE"])
}

type staticProbe struct {
	devices []string
}

func (p staticProbe) Detect(context.Context) (GPUInfo, error) {
	return GPUInfo{Devices: p.devices}, nil
}

func TestBuildGPUDevices(t *testing.T) {
	cfg := testConfig()
	cfg.Runtime = &config.RuntimeConfig{GPU: true}

	plan, err := NewBuilder(cfg, tempDir(t), staticProbe{devices: []string{"NVIDIA A100"}}).
		Build(context.Background(), Request{Tool: "hillshade"})
	require.NoError(t, err)
	assert.Equal(t, []string{"NVIDIA A100"}, plan.GPUDevices)

	// GPU disabled in the project config means the probe is not consulted.
	cfg.Runtime.GPU = false
	plan, err = NewBuilder(cfg, tempDir(t), staticProbe{devices: []string{"NVIDIA A100"}}).
		Build(context.Background(), Request{Tool: "hillshade"})
	require.NoError(t, err)
	assert.Empty(t, plan.GPUDevices)
}
