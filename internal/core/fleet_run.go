package core

import (
	"context"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/auto-dns/docker-fleet-updater/internal/progress"
	"golang.org/x/sync/errgroup"
)

// CheckAll runs every enabled host in parallel, then notifies about the outcomes that have
// not been reported before. It never fails; problems end up in the log and in the fleet
// progress entry.
func (o *Orchestrator) CheckAll(ctx context.Context, update bool) {
	key := progress.FleetKey
	if !o.cache.Begin(key, domain.StatusPreparing) {
		o.logger.Warn().Msg("General check process is already running")
		return
	}
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error().Msgf("Fleet run panicked: %v", p)
			o.cache.Update(key, progress.Entry{Status: domain.StatusError})
		}
	}()

	o.logger.Info().Msg("Start checking of all containers for all hosts")
	hosts, err := o.store.ListEnabledHosts(ctx)
	if err != nil {
		o.logger.Error().Err(err).Msg("Error while checking of all containers for all hosts")
		o.cache.Update(key, progress.Entry{Status: domain.StatusError})
		return
	}

	status := domain.StatusChecking
	if update {
		status = domain.StatusUpdating
	}
	o.cache.Update(key, progress.Entry{Status: status})

	results := make([]*domain.HostResult, len(hosts))
	var eg errgroup.Group
	if o.opts.MaxParallelHosts > 0 {
		eg.SetLimit(o.opts.MaxParallelHosts)
	}
	for i, h := range hosts {
		eg.Go(func() error {
			results[i] = o.CheckHost(ctx, h, update)
			return nil
		})
	}
	_ = eg.Wait()

	fleet := domain.FleetResult{}
	var collected []*domain.HostResult
	for _, r := range results {
		if r != nil {
			fleet[r.HostID] = r
			collected = append(collected, r)
		}
	}
	o.cache.Update(key, progress.Entry{Status: domain.StatusDone, Result: fleet})

	batch, err := o.markNotified(ctx, collected)
	if err != nil {
		o.logger.Error().Err(err).Msg("Failed to mark notified results")
		o.cache.Update(key, progress.Entry{Status: domain.StatusError})
		return
	}
	if len(batch) == 0 {
		return
	}
	if err := o.notifier.Notify(ctx, batch); err != nil {
		o.logger.Error().Err(err).Msg("Failed to send check notification")
	}
}
