package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the GeoEngine version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("geoengine %s\n", a.version)
		},
	}
}
