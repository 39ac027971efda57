package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geoengine/geoengine/docker"
)

func (a *App) newGPUCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gpu",
		Short: "Show detected GPU devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := docker.GPUProbe{}.Detect(cmd.Context())
			if err != nil {
				return err
			}

			if len(info.Devices) == 0 {
				fmt.Println("No NVIDIA GPUs detected")
				fmt.Println("\nGPU-enabled projects will run without GPU passthrough.")
				return nil
			}

			fmt.Printf("Detected %d GPU(s):\n", len(info.Devices))
			for i, name := range info.Devices {
				fmt.Printf("  %d: %s\n", i, name)
			}
			return nil
		},
	}
}
