// Package cli wires the geoengine command tree.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/geoengine/geoengine/config"
	"github.com/geoengine/geoengine/proxy"
)

// App is the CLI application with its wired dependencies.
type App struct {
	rootCmd *cobra.Command

	verbose bool
	version string
}

// New creates the CLI application.
func New() *App {
	app := &App{}
	app.setupRootCmd()
	return app
}

// SetVersion sets the version string reported by the version command.
func (a *App) SetVersion(version string) {
	a.version = version
	proxy.Version = version
}

// Execute runs the CLI.
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "geoengine",
		Short: "Docker-based isolated runtime manager for geospatial workloads",
		Long: `GeoEngine runs declaratively-defined geospatial tools inside isolated
containers, synchronously from this CLI or asynchronously through the
proxy service used by QGIS and ArcGIS plugins.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if a.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	a.rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose output")

	a.rootCmd.AddCommand(
		a.newProjectCmd(),
		a.newImageCmd(),
		a.newServiceCmd(),
		a.newGPUCmd(),
		a.newVersionCmd(),
	)
}

// loadSettings loads the user settings from the default location.
func (a *App) loadSettings() (*config.Settings, error) {
	path, err := config.SettingsFile()
	if err != nil {
		return nil, err
	}
	return config.LoadSettings(path)
}
