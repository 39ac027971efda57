package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/geoengine/geoengine/docker"
)

func (a *App) newImageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Manage project Docker images",
	}

	cmd.AddCommand(
		a.newImageListCmd(),
		a.newImagePullCmd(),
		a.newImageRemoveCmd(),
		a.newImageImportCmd(),
		a.newImageExportCmd(),
	)
	return cmd
}

func (a *App) newImageListCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List GeoEngine project images",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := docker.New(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			filter := "geoengine-*"
			if all {
				filter = ""
			}
			images, err := client.ListImages(cmd.Context(), filter, false)
			if err != nil {
				return err
			}

			if len(images) == 0 {
				fmt.Println("No images found")
				return nil
			}

			fmt.Printf("%-45s %-12s %s\n", "TAG", "SIZE", "CREATED")
			for _, img := range images {
				tag := "<none>"
				if len(img.RepoTags) > 0 {
					tag = img.RepoTags[0]
				}
				created := time.Unix(img.Created, 0).Format("2006-01-02 15:04")
				fmt.Printf("%-45s %-12s %s\n", tag, units.HumanSize(float64(img.Size)), created)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Show all images, not only geoengine-* ones")
	return cmd
}

func (a *App) newImagePullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <reference>",
		Short: "Pull an image from a registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := docker.New(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			fmt.Printf("Pulling %s...\n", args[0])
			if err := client.PullImage(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("Done")
			return nil
		},
	}
}

func (a *App) newImageRemoveCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "remove <reference>",
		Short: "Remove a local image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := docker.New(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.RemoveImage(cmd.Context(), args[0], force); err != nil {
				return err
			}
			fmt.Printf("Removed %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Force removal")
	return cmd
}

func (a *App) newImageImportCmd() *cobra.Command {
	var tag string

	cmd := &cobra.Command{
		Use:   "import <tar-file>",
		Short: "Load an image from a tar archive (for air-gapped hosts)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if tag != "" && !strings.Contains(tag, "=") {
				return fmt.Errorf("--retag must be of the form SOURCE=TARGET")
			}

			client, err := docker.New(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			fmt.Printf("Importing %s...\n", args[0])
			if err := client.ImportImage(cmd.Context(), args[0], tag); err != nil {
				return err
			}
			fmt.Println("Done")
			return nil
		},
	}

	cmd.Flags().StringVar(&tag, "retag", "", "Retag after load (format: SOURCE=TARGET)")
	return cmd
}

func (a *App) newImageExportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <reference>",
		Short: "Save an image to a tar archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output
			if out == "" {
				out = strings.NewReplacer("/", "_", ":", "_").Replace(args[0]) + ".tar"
			}

			client, err := docker.New(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			fmt.Printf("Exporting %s to %s...\n", args[0], out)
			if err := client.ExportImage(cmd.Context(), args[0], out); err != nil {
				return err
			}
			fmt.Println("Done")
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output tar path")
	return cmd
}
