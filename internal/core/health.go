package core

import (
	"context"
	"time"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/rs/zerolog"
)

const defaultHealthPollInterval = 2 * time.Second

// waitHealthy polls the container until it reports healthy, turns unhealthy or the
// timeout passes. Containers without a health check count as healthy once running and
// as failed once exited or dead.
func (o *Orchestrator) waitHealthy(ctx context.Context, logger zerolog.Logger, client AgentClient, name string, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		c, err := client.InspectContainer(ctx, name)
		if err != nil {
			logger.Warn().Err(err).Msgf("Failed to inspect container %s while waiting for health", name)
		} else {
			switch domain.ContainerHealth(c) {
			case domain.HealthHealthy:
				return true
			case domain.HealthUnhealthy:
				return false
			case domain.HealthStarting:
			default:
				switch domain.ContainerStatus(c) {
				case domain.ContainerStatusRunning:
					return true
				case domain.ContainerStatusExited, domain.ContainerStatusDead:
					return false
				}
			}
		}

		select {
		case <-deadline.C:
			logger.Warn().Msgf("Timed out after %s waiting for container %s to become healthy", timeout, name)
			return false
		case <-ctx.Done():
			return false
		case <-time.After(o.opts.HealthPollInterval):
		}
	}
}
