package core

import (
	"context"
	"fmt"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/auto-dns/docker-fleet-updater/internal/progress"
)

// detach runs fn in the background. The run outlives the request that started it.
func (o *Orchestrator) detach(ctx context.Context, fn func(ctx context.Context)) {
	runCtx := context.WithoutCancel(ctx)
	o.running.Add(1)
	go func() {
		defer o.running.Done()
		fn(runCtx)
	}()
}

// Wait blocks until every background run has finished.
func (o *Orchestrator) Wait() {
	o.running.Wait()
}

// StartAll launches a fleet run and returns its progress key.
func (o *Orchestrator) StartAll(ctx context.Context, update bool) string {
	o.detach(ctx, func(ctx context.Context) {
		o.CheckAll(ctx, update)
	})
	return progress.FleetKey
}

// StartHost launches a host run and returns its progress key.
func (o *Orchestrator) StartHost(ctx context.Context, host domain.Host, update bool) (string, error) {
	if !host.Enabled {
		return "", NewHostDisabledError(host.ID)
	}
	o.detach(ctx, func(ctx context.Context) {
		o.CheckHost(ctx, host, update)
	})
	return progress.HostKey(host), nil
}

// StartContainer builds the group of a single container and launches a run of it. With
// update set the container is updated regardless of its policy. It returns the progress
// key of the group.
func (o *Orchestrator) StartContainer(ctx context.Context, host domain.Host, name string, update bool) (string, error) {
	if !host.Enabled {
		return "", NewHostDisabledError(host.ID)
	}
	client := o.clients(host)
	exists, err := client.ContainerExists(ctx, name)
	if err != nil {
		return "", fmt.Errorf("look up container %s: %w", name, err)
	}
	if !exists {
		return "", NewContainerNotFoundError(host.ID, name)
	}
	target, err := client.InspectContainer(ctx, name)
	if err != nil {
		return "", fmt.Errorf("inspect container %s: %w", name, err)
	}
	containers, err := client.ListContainers(ctx, true)
	if err != nil {
		return "", fmt.Errorf("list containers: %w", err)
	}
	policies, err := o.store.ListContainerPolicies(ctx, host.ID)
	if err != nil {
		return "", fmt.Errorf("list container policies: %w", err)
	}

	g := o.builder.BuildFor(target, containers, policies, update)
	o.detach(ctx, func(ctx context.Context) {
		o.checkGroup(ctx, host, client, g, update)
	})
	return progress.GroupKey(host, g.Name), nil
}
