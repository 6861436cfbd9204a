package core

import (
	"context"
	"fmt"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/auto-dns/docker-fleet-updater/internal/progress"
)

// CheckHost runs every group of the host in build order, then prunes images when the host
// asks for it. It returns nil when the host run is refused or fails.
func (o *Orchestrator) CheckHost(ctx context.Context, host domain.Host, update bool) (result *domain.HostResult) {
	key := progress.HostKey(host)
	logger := o.logger.With().Int("host_id", host.ID).Str("host", host.Name).Logger()
	if !o.cache.Begin(key, domain.StatusPreparing) {
		logger.Warn().Msgf("Check process for %s is already running", key)
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			logger.Error().Msgf("Host run panicked: %v", p)
			o.cache.Update(key, progress.Entry{Status: domain.StatusError})
			result = nil
		}
	}()

	logger.Info().Msgf("Starting check for host '%s'", host.Name)
	result, err := o.runHost(ctx, host, key, update)
	if err != nil {
		logger.Error().Err(err).Msgf("Failed to check host %s", host.Name)
		o.cache.Update(key, progress.Entry{Status: domain.StatusError})
		return nil
	}
	o.cache.Update(key, progress.Entry{Status: domain.StatusDone, Result: result})
	return result
}

func (o *Orchestrator) runHost(ctx context.Context, host domain.Host, key string, update bool) (*domain.HostResult, error) {
	client := o.clients(host)
	containers, err := client.ListContainers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	policies, err := o.store.ListContainerPolicies(ctx, host.ID)
	if err != nil {
		return nil, fmt.Errorf("list container policies: %w", err)
	}
	groups := o.builder.Build(containers, policies)

	status := domain.StatusChecking
	if update {
		status = domain.StatusUpdating
	}
	o.cache.Update(key, progress.Entry{Status: status})

	result := &domain.HostResult{GroupResult: domain.GroupResult{HostID: host.ID, HostName: host.Name}}
	for _, g := range groups {
		if res := o.checkGroup(ctx, host, client, g, update); res != nil {
			result.Items = append(result.Items, res.Items...)
		}
	}

	if host.Prune {
		o.cache.Update(key, progress.Entry{Status: domain.StatusPruning})
		o.logger.Info().Int("host_id", host.ID).Msgf("Pruning images on host '%s'", host.Name)
		out, err := client.PruneImages(ctx, host.PruneAll)
		if err != nil {
			o.logger.Error().Err(err).Int("host_id", host.ID).Msgf("Failed to prune images on host '%s'", host.Name)
		} else {
			result.PruneResult = out
		}
	}
	return result, nil
}
