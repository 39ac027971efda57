package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/geoengine/geoengine/config"
	"github.com/geoengine/geoengine/docker"
	"github.com/geoengine/geoengine/engine"
)

func (a *App) newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage GeoEngine projects",
	}

	cmd.AddCommand(
		a.newProjectInitCmd(),
		a.newProjectRegisterCmd(),
		a.newProjectUnregisterCmd(),
		a.newProjectListCmd(),
		a.newProjectToolsCmd(),
		a.newProjectShowCmd(),
		a.newProjectBuildCmd(),
		a.newProjectRunCmd(),
		a.newProjectRunToolCmd(),
	)
	return cmd
}

func (a *App) newProjectInitCmd() *cobra.Command {
	var name, output string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new geoengine.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := output
			if dir == "" {
				var err error
				if dir, err = os.Getwd(); err != nil {
					return err
				}
			}
			configPath := filepath.Join(dir, config.ProjectFileName)
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("%s already exists in %s", config.ProjectFileName, dir)
			}

			projectName := name
			if projectName == "" {
				projectName = filepath.Base(dir)
			}

			data, err := yaml.Marshal(config.Template(projectName))
			if err != nil {
				return err
			}
			if err := os.WriteFile(configPath, data, 0644); err != nil {
				return err
			}

			fmt.Printf("Created %s in %s\n", config.ProjectFileName, dir)
			fmt.Println("\nNext steps:")
			fmt.Println("  1. Edit geoengine.yaml to configure your project")
			fmt.Println("  2. Run 'geoengine project register .' to register the project")
			fmt.Println("  3. Run 'geoengine project build <name>' to build the Docker image")
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Project name")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory (defaults to current directory)")
	return cmd
}

func (a *App) newProjectRegisterCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "register <path>",
		Short: "Register a project directory with GeoEngine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			path, err = filepath.EvalSymlinks(path)
			if err != nil {
				return fmt.Errorf("directory not found: %s", args[0])
			}

			cfg, err := config.LoadProjectDir(path)
			if err != nil {
				return err
			}

			projectName := name
			if projectName == "" {
				projectName = cfg.Name
			}

			settings, err := a.loadSettings()
			if err != nil {
				return err
			}
			if err := settings.Register(projectName, path); err != nil {
				return err
			}
			if err := settings.Save(); err != nil {
				return err
			}

			fmt.Printf("Registered project %q at %s\n", projectName, path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Override project name")
	return cmd
}

func (a *App) newProjectUnregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unregister <name>",
		Short: "Unregister a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := a.loadSettings()
			if err != nil {
				return err
			}
			if err := settings.Unregister(args[0]); err != nil {
				return err
			}
			if err := settings.Save(); err != nil {
				return err
			}
			fmt.Printf("Unregistered project %q\n", args[0])
			return nil
		},
	}
}

func (a *App) newProjectListCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all registered projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := a.loadSettings()
			if err != nil {
				return err
			}
			entries := settings.ListProjects()

			if jsonOut {
				type entryJSON struct {
					Name       string `json:"name"`
					Path       string `json:"path"`
					ToolsCount int    `json:"tools_count"`
				}
				out := make([]entryJSON, 0, len(entries))
				for _, e := range entries {
					count := 0
					if cfg, err := config.LoadProjectDir(e.Path); err == nil {
						count = len(cfg.Tools())
					}
					out = append(out, entryJSON{Name: e.Name, Path: e.Path, ToolsCount: count})
				}
				return json.NewEncoder(os.Stdout).Encode(out)
			}

			if len(entries) == 0 {
				fmt.Println("No projects registered")
				fmt.Println("\nRegister a project with: geoengine project register <path>")
				return nil
			}

			fmt.Printf("%-25s %s\n", "NAME", "PATH")
			fmt.Println(strings.Repeat("-", 80))
			for _, e := range entries {
				status := "x"
				if _, err := os.Stat(filepath.Join(e.Path, config.ProjectFileName)); err == nil {
					status = "+"
				}
				fmt.Printf("%s %-23s %s\n", status, e.Name, e.Path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON (for programmatic use)")
	return cmd
}

func (a *App) newProjectToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools <project>",
		Short: "List GIS tools defined in a project (JSON output)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.loadProject(args[0])
			if err != nil {
				return err
			}

			type paramJSON struct {
				Name        string   `json:"name"`
				Label       string   `json:"label,omitempty"`
				MapTo       string   `json:"map_to,omitempty"`
				Type        string   `json:"param_type,omitempty"`
				Required    bool     `json:"required"`
				Default     any      `json:"default,omitempty"`
				Description string   `json:"description,omitempty"`
				Choices     []string `json:"choices,omitempty"`
			}
			type toolJSON struct {
				Name        string      `json:"name"`
				Label       string      `json:"label,omitempty"`
				Description string      `json:"description,omitempty"`
				Inputs      []paramJSON `json:"inputs,omitempty"`
				Outputs     []paramJSON `json:"outputs,omitempty"`
			}
			toParams := func(defs []config.ParameterDefinition) []paramJSON {
				out := make([]paramJSON, 0, len(defs))
				for _, p := range defs {
					out = append(out, paramJSON{
						Name:        p.Name,
						Label:       p.Label,
						MapTo:       p.MapTo,
						Type:        p.Type,
						Required:    p.IsRequired(),
						Default:     p.Default,
						Description: p.Description,
						Choices:     p.Choices,
					})
				}
				return out
			}

			tools := make([]toolJSON, 0, len(cfg.Tools()))
			for _, t := range cfg.Tools() {
				tools = append(tools, toolJSON{
					Name:        t.Name,
					Label:       t.Label,
					Description: t.Description,
					Inputs:      toParams(t.Inputs),
					Outputs:     toParams(t.Outputs),
				})
			}
			return json.NewEncoder(os.Stdout).Encode(tools)
		},
	}
}

func (a *App) newProjectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project>",
		Short: "Show project configuration details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, projectPath, err := a.loadProject(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Name: %s\n", cfg.Name)
			version := cfg.Version
			if version == "" {
				version = "N/A"
			}
			fmt.Printf("Version: %s\n", version)
			fmt.Printf("Path: %s\n", projectPath)
			if cfg.BaseImage != "" {
				fmt.Printf("Base Image: %s\n", cfg.BaseImage)
			}

			if rt := cfg.Runtime; rt != nil {
				fmt.Println("\nRuntime Configuration:")
				gpu := "disabled"
				if rt.GPU {
					gpu = "enabled"
				}
				fmt.Printf("  GPU: %s\n", gpu)
				if rt.Memory != "" {
					fmt.Printf("  Memory: %s\n", rt.Memory)
				}
				if rt.CPUs > 0 {
					fmt.Printf("  CPUs: %g\n", rt.CPUs)
				}
				if rt.WorkDir != "" {
					fmt.Printf("  Workdir: %s\n", rt.WorkDir)
				}
			}

			if len(cfg.Scripts) > 0 {
				fmt.Println("\nScripts:")
				names := make([]string, 0, len(cfg.Scripts))
				for name := range cfg.Scripts {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					fmt.Printf("  %s: %s\n", name, cfg.Scripts[name])
				}
			}

			if tools := cfg.Tools(); len(tools) > 0 {
				fmt.Println("\nGIS Tools:")
				for _, t := range tools {
					fmt.Printf("  %s - %s\n", t.Name, t.Label)
				}
			}
			return nil
		},
	}
}

func (a *App) newProjectBuildCmd() *cobra.Command {
	var noCache bool
	var buildArgs []string

	cmd := &cobra.Command{
		Use:   "build <project>",
		Short: "Build the Docker image for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, projectPath, err := a.loadProject(args[0])
			if err != nil {
				return err
			}

			dockerfile := "Dockerfile"
			contextDir := "."
			cfgArgs := map[string]string{}
			if b := cfg.Build; b != nil {
				if b.Dockerfile != "" {
					dockerfile = b.Dockerfile
				}
				if b.Context != "" {
					contextDir = b.Context
				}
				for k, v := range b.Args {
					cfgArgs[k] = v
				}
			}
			dockerfilePath := filepath.Join(projectPath, dockerfile)
			if _, err := os.Stat(dockerfilePath); err != nil {
				return fmt.Errorf("Dockerfile not found: %s", dockerfilePath)
			}

			// CLI build args override config values.
			for _, arg := range buildArgs {
				if k, v, ok := strings.Cut(arg, "="); ok {
					cfgArgs[k] = v
				}
			}

			client, err := docker.New(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			tag := cfg.ImageTag()
			fmt.Fprintf(os.Stderr, "Building project %q...\n", args[0])
			if err := client.BuildImage(cmd.Context(), dockerfilePath, filepath.Join(projectPath, contextDir), tag, cfgArgs, noCache); err != nil {
				return err
			}

			fmt.Printf("Successfully built image: %s\n", tag)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Don't use cache when building")
	cmd.Flags().StringArrayVar(&buildArgs, "build-arg", nil, "Build arguments (format: KEY=VALUE)")
	return cmd
}

func (a *App) newProjectRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <project> [script] [args...]",
		Short: "Run a script defined in the project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script := "default"
			var extra []string
			if len(args) > 1 {
				script = args[1]
				extra = args[2:]
			}

			cfg, projectPath, err := a.loadProject(args[0])
			if err != nil {
				return err
			}

			builder := engine.NewBuilder(cfg, projectPath, docker.GPUProbe{})
			plan, err := builder.Build(cmd.Context(), engine.Request{
				Script: script,
				Args:   extra,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Running script %q for project %q...\n", script, args[0])
			return a.runPlan(cmd, plan, runOutput{})
		},
	}
}

func (a *App) newProjectRunToolCmd() *cobra.Command {
	var inputs []string
	var outputDir string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "run-tool <project> <tool>",
		Short: "Run a GIS tool from a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, projectPath, err := a.loadProject(args[0])
			if err != nil {
				return err
			}

			builder := engine.NewBuilder(cfg, projectPath, docker.GPUProbe{})
			plan, err := builder.Build(cmd.Context(), engine.Request{
				Tool:      args[1],
				Inputs:    inputs,
				OutputDir: outputDir,
				JSONMode:  jsonOut,
			})
			if err != nil {
				return err
			}

			if !jsonOut {
				fmt.Fprintf(os.Stderr, "Running tool %q for project %q...\n", args[1], args[0])
			}
			return a.runPlan(cmd, plan, runOutput{json: jsonOut, outputDir: outputDir})
		},
	}

	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "Input parameters (format: KEY=VALUE, repeatable)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Output directory for results (mounted to /output in container)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit structured JSON result to stdout on completion")
	return cmd
}

// runOutput controls result reporting for the synchronous run path.
type runOutput struct {
	json      bool
	outputDir string
}

// runPlan executes a plan attached and reports the result. The container's
// exit code becomes the process exit code on failure.
func (a *App) runPlan(cmd *cobra.Command, plan *engine.Plan, out runOutput) error {
	client, err := docker.New(cmd.Context())
	if err != nil {
		return err
	}
	defer client.Close()

	stdout := os.Stdout
	if out.json {
		// In JSON mode stdout carries only the structured result.
		stdout = os.Stderr
	}
	exitCode, runErr := client.RunAttached(cmd.Context(), plan, stdout, os.Stderr)

	if out.json {
		result := engine.RunResult{
			Status:   "completed",
			ExitCode: exitCode,
			Files:    engine.CollectOutputFiles(out.outputDir),
		}
		if out.outputDir != "" {
			if abs, err := filepath.Abs(out.outputDir); err == nil {
				result.OutputDir = abs
			} else {
				result.OutputDir = out.outputDir
			}
		}
		if runErr != nil {
			result.Status = "failed"
			result.Error = runErr.Error()
		} else if exitCode != 0 {
			result.Status = "failed"
			result.Error = fmt.Sprintf("container exited with code %d", exitCode)
		}
		if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
			return err
		}
	} else if runErr == nil {
		if exitCode == 0 {
			fmt.Fprintln(os.Stderr, "Completed successfully")
		} else {
			fmt.Fprintf(os.Stderr, "Failed with exit code %d\n", exitCode)
		}
	}

	if runErr != nil {
		return runErr
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

// loadProject resolves a project reference and loads its configuration.
func (a *App) loadProject(ref string) (*config.ProjectConfig, string, error) {
	settings, err := a.loadSettings()
	if err != nil {
		return nil, "", err
	}
	projectPath, err := settings.ProjectPath(ref)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadProjectDir(projectPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, projectPath, nil
}
