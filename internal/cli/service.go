package cli

import (
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/geoengine/geoengine/config"
	"github.com/geoengine/geoengine/docker"
	"github.com/geoengine/geoengine/jobs"
	"github.com/geoengine/geoengine/proxy"
)

const (
	defaultServicePort = 8090
	defaultMaxWorkers  = 2
)

func (a *App) newServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Run the proxy service used by GIS plugins",
	}

	cmd.AddCommand(a.newServiceStartCmd())
	return cmd
}

func (a *App) newServiceStartCmd() *cobra.Command {
	var port, maxWorkers int

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the HTTP proxy service in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := a.loadSettings()
			if err != nil {
				return err
			}

			// Flags override persisted settings, which override defaults.
			if port == 0 {
				port = settings.ServicePort
			}
			if port == 0 {
				port = defaultServicePort
			}
			if maxWorkers == 0 {
				maxWorkers = settings.MaxWorkers
			}
			if maxWorkers == 0 {
				maxWorkers = defaultMaxWorkers
			}

			settings.ServicePort = port
			settings.MaxWorkers = maxWorkers
			if err := settings.Save(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := docker.New(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			var history jobs.History
			if historyPath, err := config.HistoryFile(); err == nil {
				store, err := jobs.NewSQLiteHistory(historyPath)
				if err == nil {
					if err := store.Init(); err == nil {
						history = store
						defer store.Close()
					} else {
						slog.Warn("job history disabled", "error", err)
					}
				} else {
					slog.Warn("job history disabled", "error", err)
				}
			}

			manager := jobs.NewManager(client, jobs.Options{
				MaxWorkers: maxWorkers,
				History:    history,
			})

			server := proxy.New(manager, settings, docker.GPUProbe{}, proxy.Config{
				Addr:       fmt.Sprintf(":%d", port),
				MaxWorkers: maxWorkers,
			})

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				manager.Run(ctx)
			}()

			err = server.Start(ctx)
			stop()
			wg.Wait()
			return err
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on")
	cmd.Flags().IntVarP(&maxWorkers, "max-workers", "w", 0, "Maximum concurrently running jobs")
	return cmd
}
