package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/distribution/reference"
	"github.com/rs/zerolog"
)

type checkResult struct {
	available bool
	imageSpec string
	oldImage  *domain.Image
	newImage  *domain.Image
}

// resolveImageSpec returns the reference the container was created from, or "" when the
// container was created from a bare image id and so cannot be pulled again.
func resolveImageSpec(c *domain.Container) (string, error) {
	spec := domain.ContainerImageSpec(c)
	if spec == "" || strings.HasPrefix(spec, "sha256:") {
		return "", nil
	}
	if _, err := reference.ParseNormalizedNamed(spec); err != nil {
		return "", fmt.Errorf("parse image reference %q: %w", spec, err)
	}
	return spec, nil
}

// checkContainer looks for a newer image of the container. It never fails: any error
// leaves the result unavailable.
func checkContainer(ctx context.Context, logger zerolog.Logger, client AgentClient, c *domain.Container) checkResult {
	name := domain.ContainerName(c)
	logger.Info().Msgf("Checking container '%s' update availability", name)

	var res checkResult
	spec, err := resolveImageSpec(c)
	if err != nil {
		logger.Error().Err(err).Msgf("Cannot check container %s", name)
		return res
	}
	if spec == "" {
		logger.Warn().Msgf("Container %s has no image reference, skipping", name)
		return res
	}
	res.imageSpec = spec

	ref := domain.ContainerImageID(c)
	if ref == "" {
		ref = spec
	}
	oldImage, err := client.InspectImage(ctx, ref)
	if err != nil {
		logger.Error().Err(err).Msgf("Failed to inspect current image of %s", name)
		return res
	}
	res.oldImage = oldImage
	if len(oldImage.RepoDigests) == 0 {
		logger.Warn().Msgf("Image of %s has no repo digests, presumably a local image", name)
		return res
	}

	newImage, err := client.PullImage(ctx, spec)
	if err != nil {
		logger.Error().Err(err).Msgf("Failed to pull %s", spec)
		return res
	}
	res.newImage = newImage
	res.available = !domain.SameDigests(oldImage.RepoDigests, newImage.RepoDigests)
	if res.available {
		logger.Info().Msgf("New image found for %s", name)
	} else {
		logger.Info().Msgf("No new image found for %s", name)
	}
	return res
}
