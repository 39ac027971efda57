package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/archive"
)

// ImageInfo summarizes one local image.
type ImageInfo struct {
	ID       string
	RepoTags []string
	Size     int64
	Created  int64
}

// BuildImage builds a Docker image from a Dockerfile and context directory,
// tagging the result. Build output is discarded; errors reported inside the
// stream surface as stream read failures.
func (c *Client) BuildImage(ctx context.Context, dockerfile, contextDir, tag string, buildArgs map[string]string, noCache bool) error {
	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("archive build context %s: %w", contextDir, err)
	}
	defer buildCtx.Close()

	rel, err := filepath.Rel(contextDir, dockerfile)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("dockerfile %s is outside build context %s", dockerfile, contextDir)
	}

	args := make(map[string]*string, len(buildArgs))
	for k, v := range buildArgs {
		v := v
		args[k] = &v
	}

	resp, err := c.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Dockerfile: rel,
		Tags:       []string{tag},
		BuildArgs:  args,
		NoCache:    noCache,
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("build image %s: %w", tag, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("build image %s: %w", tag, err)
	}
	return nil
}

// PullImage pulls an image from a registry.
func (c *Client) PullImage(ctx context.Context, ref string) error {
	reader, err := c.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// RemoveImage removes a local image.
func (c *Client) RemoveImage(ctx context.Context, ref string, force bool) error {
	_, err := c.cli.ImageRemove(ctx, ref, image.RemoveOptions{Force: force})
	if err != nil {
		return fmt.Errorf("remove image %s: %w", ref, err)
	}
	return nil
}

// ListImages lists local images, optionally filtered by reference.
func (c *Client) ListImages(ctx context.Context, filter string, all bool) ([]ImageInfo, error) {
	opts := image.ListOptions{All: all}
	if filter != "" {
		opts.Filters = filters.NewArgs(filters.Arg("reference", filter))
	}

	images, err := c.cli.ImageList(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	out := make([]ImageInfo, 0, len(images))
	for _, img := range images {
		out = append(out, ImageInfo{
			ID:       img.ID,
			RepoTags: img.RepoTags,
			Size:     img.Size,
			Created:  img.Created,
		})
	}
	return out, nil
}

// ImportImage loads an image from a tar file, optionally retagging it.
// Used for air-gapped environments.
func (c *Client) ImportImage(ctx context.Context, tarPath, tag string) error {
	f, err := os.Open(tarPath)
	if err != nil {
		return fmt.Errorf("open image tar %s: %w", tarPath, err)
	}
	defer f.Close()

	resp, err := c.cli.ImageLoad(ctx, f, true)
	if err != nil {
		return fmt.Errorf("load image from %s: %w", tarPath, err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return err
	}

	if tag != "" {
		// The loaded tag is unknown here; retag the most specific loaded
		// reference only when the caller supplied both source and target.
		if src, dst, ok := strings.Cut(tag, "="); ok {
			return c.TagImage(ctx, src, dst)
		}
	}
	return nil
}

// ExportImage saves an image to a tar file for transfer.
func (c *Client) ExportImage(ctx context.Context, ref, outPath string) error {
	reader, err := c.cli.ImageSave(ctx, []string{ref})
	if err != nil {
		return fmt.Errorf("save image %s: %w", ref, err)
	}
	defer reader.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	return nil
}

// TagImage applies a new tag to an existing image.
func (c *Client) TagImage(ctx context.Context, source, target string) error {
	if err := c.cli.ImageTag(ctx, source, target); err != nil {
		return fmt.Errorf("tag %s as %s: %w", source, target, err)
	}
	return nil
}

// PushImage pushes an image to a registry. registryAuth is the base64
// encoded auth config; empty relies on daemon-side credentials.
func (c *Client) PushImage(ctx context.Context, ref, registryAuth string) error {
	if registryAuth == "" {
		registryAuth = "e30=" // empty JSON auth
	}
	reader, err := c.cli.ImagePush(ctx, ref, image.PushOptions{RegistryAuth: registryAuth})
	if err != nil {
		return fmt.Errorf("push image %s: %w", ref, err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}
