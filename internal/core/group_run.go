package core

import (
	"context"
	"fmt"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/auto-dns/docker-fleet-updater/internal/group"
	"github.com/auto-dns/docker-fleet-updater/internal/progress"
	"github.com/rs/zerolog"
)

// groupRun carries the state of one group run.
type groupRun struct {
	o      *Orchestrator
	ctx    context.Context
	logger zerolog.Logger
	client AgentClient
	host   domain.Host
	group  *group.Group
	key    string
}

// CheckGroup checks the group and, when update is set, updates its eligible containers.
// It returns nil when a run of the same group is already in progress.
func (o *Orchestrator) CheckGroup(ctx context.Context, host domain.Host, g *group.Group, update bool) *domain.GroupResult {
	return o.checkGroup(ctx, host, o.clients(host), g, update)
}

func (o *Orchestrator) checkGroup(ctx context.Context, host domain.Host, client AgentClient, g *group.Group, update bool) (result *domain.GroupResult) {
	key := progress.GroupKey(host, g.Name)
	logger := o.logger.With().Int("host_id", host.ID).Str("host", host.Name).Str("group", g.Name).Logger()
	if !o.cache.Begin(key, domain.StatusPreparing) {
		logger.Warn().Msgf("Check process of %s is already running", key)
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			logger.Error().Msgf("Group run panicked: %v", p)
			o.cache.Update(key, progress.Entry{Status: domain.StatusError})
			result = nil
		}
	}()

	logger.Info().Msgf("Starting check of group '%s', containers count: %d", g.Name, len(g.Items))
	r := &groupRun{o: o, ctx: ctx, logger: logger, client: client, host: host, group: g, key: key}
	return r.run(update)
}

func (r *groupRun) run(update bool) *domain.GroupResult {
	r.o.cache.Update(r.key, progress.Entry{Status: domain.StatusChecking})
	for _, item := range r.group.Items {
		if item.Action != domain.ActionCheck && item.Action != domain.ActionUpdate {
			continue
		}
		res := checkContainer(r.ctx, r.logger, r.client, item.Container)
		item.Result = domain.OutcomeNotAvailable
		if res.available {
			item.Result = domain.OutcomeAvailable
		}
		item.ImageSpec = res.imageSpec
		item.OldImage = res.oldImage
		item.NewImage = res.newImage
	}

	if !update || !r.anyWillUpdate() {
		r.logger.Info().Msg("Group check completed")
		return r.finish(domain.StatusDone)
	}

	r.logger.Info().Msg("Starting to update group")
	r.o.cache.Update(r.key, progress.Entry{Status: domain.StatusUpdating})

	if ok := r.captureAndStop(); !ok {
		return r.finish(domain.StatusError)
	}

	anyFailed := false
	for _, item := range r.group.Items {
		if willSkip(item) {
			continue
		}
		if willUpdate(item) && !anyFailed {
			if !r.update(item) {
				anyFailed = true
			}
			continue
		}
		r.start(item)
	}

	r.logger.Info().Msg("Group update completed")
	return r.finish(domain.StatusDone)
}

// willUpdate: a newer image was found, the policy allows updates, and the container is
// running and unprotected.
func willUpdate(item *group.Item) bool {
	return item.Result == domain.OutcomeAvailable &&
		item.ImageSpec != "" &&
		item.OldImage != nil &&
		item.NewImage != nil &&
		item.Action == domain.ActionUpdate &&
		!item.Protected &&
		domain.IsRunning(item.Container)
}

// willSkip: the container is neither stopped nor started by the update phase.
func willSkip(item *group.Item) bool {
	return item.Protected || !domain.IsRunning(item.Container)
}

func (r *groupRun) anyWillUpdate() bool {
	for _, item := range r.group.Items {
		if willUpdate(item) {
			return true
		}
	}
	return false
}

// captureAndStop walks the group from the most dependent container down. On failure it
// restarts what it already stopped and reports false.
func (r *groupRun) captureAndStop() bool {
	var stopped []*group.Item
	items := r.group.Items
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		name := item.Name()
		if willSkip(item) {
			if item.Protected {
				r.logger.Info().Msgf("Container %s is protected, skipping", name)
			} else {
				r.logger.Info().Msgf("Container %s is not running, skipping", name)
			}
			continue
		}

		r.logger.Info().Msgf("Getting config for container %s", name)
		cfg, commands, err := captureConfig(item.Container)
		if err != nil {
			r.logger.Error().Err(err).Msgf("Failed to get config for container %s", name)
			if willUpdate(item) {
				r.logger.Error().Msg("Failed to get config for updatable container, exiting group update")
				r.restart(stopped)
				return false
			}
		} else {
			item.Config = cfg
			item.Commands = commands
		}

		r.logger.Info().Msgf("Stopping container %s", name)
		if err := r.client.StopContainer(r.ctx, name); err != nil {
			r.logger.Error().Err(err).Msgf("Failed to stop container %s, exiting group update", name)
			r.restart(stopped)
			return false
		}
		stopped = append(stopped, item)
	}
	return true
}

// restart starts the given containers, which were stopped in reverse dependency order.
func (r *groupRun) restart(stopped []*group.Item) {
	for i := len(stopped) - 1; i >= 0; i-- {
		name := stopped[i].Name()
		if err := r.client.StartContainer(r.ctx, name); err != nil {
			r.logger.Error().Err(err).Msgf("Failed to restart container %s", name)
		}
	}
}

// update recreates the container from the new image and rolls back when it does not come
// up healthy. It reports false only when the rollback failed as well.
func (r *groupRun) update(item *group.Item) bool {
	name := item.Name()
	logger := r.logger.With().Str("container", name).Logger()
	logger.Info().Msgf("Starting update of container %s", name)

	healthy, err := r.recreate(item, logger)
	switch {
	case err != nil:
		logger.Error().Err(err).Msg("Update failed, rolling back")
		r.removeLeftover(name, logger)
	case healthy:
		logger.Info().Msg("Container is healthy")
		item.Result = domain.OutcomeUpdated
		return true
	default:
		logger.Warn().Msg("Container is unhealthy, rolling back")
		if err := r.discard(name); err != nil {
			logger.Error().Err(err).Msg("Failed to discard unhealthy container")
			r.removeLeftover(name, logger)
		}
	}

	if err := r.rollback(item, logger); err != nil {
		logger.Error().Err(err).Msg("Failed to roll back container")
		item.Result = domain.OutcomeFailed
		return false
	}
	return true
}

func (r *groupRun) recreate(item *group.Item, logger zerolog.Logger) (bool, error) {
	name := item.Name()
	logger.Info().Msg("Removing container")
	if err := r.client.RemoveContainer(r.ctx, name); err != nil {
		return false, fmt.Errorf("remove container: %w", err)
	}
	merged := mergeWithImage(item.Config, item.ImageSpec, item.OldImage, item.NewImage)
	logger.Info().Msg("Recreating container")
	created, err := r.client.CreateContainer(r.ctx, merged)
	if err != nil {
		return false, fmt.Errorf("create container: %w", err)
	}
	logger.Info().Msg("Starting container")
	if err := r.client.StartContainer(r.ctx, name); err != nil {
		return false, fmt.Errorf("start container: %w", err)
	}
	r.runCommands(item.Commands, logger)
	logger.Info().Msg("Waiting for healthchecks")
	if !r.o.waitHealthy(r.ctx, logger, r.client, name, r.host.HealthCheckTimeout()) {
		return false, nil
	}
	item.Container = created
	return true, nil
}

func (r *groupRun) discard(name string) error {
	if err := r.client.StopContainer(r.ctx, name); err != nil {
		return err
	}
	return r.client.RemoveContainer(r.ctx, name)
}

// removeLeftover removes a half-created replacement, if there is one.
func (r *groupRun) removeLeftover(name string, logger zerolog.Logger) {
	exists, err := r.client.ContainerExists(r.ctx, name)
	if err != nil || !exists {
		return
	}
	logger.Warn().Msg("Removing failed container")
	if err := r.discard(name); err != nil {
		logger.Error().Err(err).Msg("Failed to remove failed container")
	}
}

// rollback recreates the container from its captured config on the previous image.
func (r *groupRun) rollback(item *group.Item, logger zerolog.Logger) error {
	logger.Warn().Msg("Tagging previous image")
	if err := r.client.TagImage(r.ctx, item.OldImage.ID, item.ImageSpec); err != nil {
		return fmt.Errorf("tag previous image: %w", err)
	}
	logger.Warn().Msg("Creating container with previous image")
	rolledBack, err := r.client.CreateContainer(r.ctx, item.Config)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	ref := domain.ContainerID(rolledBack)
	if ref == "" {
		ref = item.Name()
	}
	logger.Warn().Msg("Starting container")
	if err := r.client.StartContainer(r.ctx, ref); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	r.runCommands(item.Commands, logger)
	item.Container = rolledBack
	item.Result = domain.OutcomeRolledBack

	logger.Warn().Msg("Waiting for healthchecks")
	if r.o.waitHealthy(r.ctx, logger, r.client, ref, r.host.HealthCheckTimeout()) {
		logger.Warn().Msg("Container is healthy after rolling back")
	} else {
		logger.Warn().Msg("Container is unhealthy after rolling back")
	}
	return nil
}

// start brings back a container that was stopped but is not updated. Failures are logged.
func (r *groupRun) start(item *group.Item) {
	name := item.Name()
	logger := r.logger.With().Str("container", name).Logger()
	logger.Info().Msgf("Starting non-updatable container %s", name)
	if err := r.client.StartContainer(r.ctx, name); err != nil {
		logger.Warn().Err(err).Msg("Failed to start non-updatable container, continuing")
		return
	}
	r.runCommands(item.Commands, logger)
	if r.o.waitHealthy(r.ctx, logger, r.client, name, r.host.HealthCheckTimeout()) {
		logger.Info().Msg("Container is healthy")
	} else {
		logger.Warn().Msg("Container is unhealthy, continuing")
	}
}

func (r *groupRun) runCommands(commands [][]string, logger zerolog.Logger) {
	for _, cmd := range commands {
		logger.Info().Strs("command", cmd).Msg("Running command")
		stdout, stderr, err := r.client.RunCommand(r.ctx, cmd)
		if err != nil {
			logger.Error().Err(err).Strs("command", cmd).Msg("Error while running command")
			continue
		}
		if stdout != "" {
			logger.Info().Msg(stdout)
		}
		if stderr != "" {
			logger.Error().Msg(stderr)
		}
	}
}

func (r *groupRun) result() *domain.GroupResult {
	res := &domain.GroupResult{HostID: r.host.ID, HostName: r.host.Name}
	for _, item := range r.group.Items {
		res.Items = append(res.Items, &domain.ContainerCheckResult{
			Container: item.Container,
			OldImage:  item.OldImage,
			NewImage:  item.NewImage,
			Result:    item.Result,
		})
	}
	return res
}

// finish writes the outcomes back to the store and records the final status.
func (r *groupRun) finish(status domain.Status) *domain.GroupResult {
	result := r.result()
	if err := r.o.writeBack(r.ctx, result); err != nil {
		r.logger.Error().Err(err).Msg("Failed to save check results")
	}
	r.o.cache.Update(r.key, progress.Entry{Status: status, Result: result})
	return result
}
