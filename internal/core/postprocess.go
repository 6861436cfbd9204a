package core

import (
	"context"
	"fmt"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
)

// writeBack records the outcome of a group run on the stored policies: whether an update
// is available, when the container was checked and, for updated ones, when it was updated.
func (o *Orchestrator) writeBack(ctx context.Context, result *domain.GroupResult) error {
	if result == nil {
		return nil
	}
	now := o.now()
	var patches []domain.PolicyPatch
	for _, item := range result.Items {
		if item.Result == domain.OutcomeUnset {
			continue
		}
		available := item.Result == domain.OutcomeAvailable
		patch := domain.PolicyPatch{
			HostID:          result.HostID,
			Name:            item.Name(),
			UpdateAvailable: &available,
			CheckedAt:       &now,
		}
		if item.Result == domain.OutcomeUpdated {
			patch.UpdatedAt = &now
		}
		patches = append(patches, patch)
	}
	if len(patches) == 0 {
		return nil
	}
	return o.store.PatchContainers(ctx, patches)
}

// markNotified returns a copy of the results in which "available" outcomes already
// reported for the same digests are marked available(notified). The digests of newly
// reported outcomes are stored in one transaction.
func (o *Orchestrator) markNotified(ctx context.Context, results []*domain.HostResult) ([]*domain.HostResult, error) {
	out := make([]*domain.HostResult, 0, len(results))
	var patches []domain.PolicyPatch

	for _, r := range results {
		copied := &domain.HostResult{
			GroupResult: domain.GroupResult{HostID: r.HostID, HostName: r.HostName},
			PruneResult: r.PruneResult,
		}
		var policies []domain.ContainerPolicy
		if hasAvailable(r) {
			var err error
			policies, err = o.store.ListContainerPolicies(ctx, r.HostID)
			if err != nil {
				return nil, fmt.Errorf("list container policies of host %d: %w", r.HostID, err)
			}
		}

		for _, item := range r.Items {
			c := *item
			if c.Result == domain.OutcomeAvailable {
				if policy := domain.FindPolicy(policies, c.Name()); policy != nil {
					var digests []string
					if c.NewImage != nil {
						digests = c.NewImage.RepoDigests
					}
					if len(policy.NotifiedAvailableDigests) > 0 && domain.SameDigests(policy.NotifiedAvailableDigests, digests) {
						o.logger.Debug().Msgf("Container %s marked as available(notified)", c.Name())
						c.Result = domain.OutcomeAvailableNotified
					} else {
						d := append([]string(nil), digests...)
						patches = append(patches, domain.PolicyPatch{
							HostID:                   r.HostID,
							Name:                     c.Name(),
							NotifiedAvailableDigests: &d,
						})
					}
				}
			}
			copied.Items = append(copied.Items, &c)
		}
		out = append(out, copied)
	}

	if len(patches) > 0 {
		if err := o.store.PatchContainers(ctx, patches); err != nil {
			return nil, fmt.Errorf("save notified digests: %w", err)
		}
	}
	return out, nil
}

func hasAvailable(r *domain.HostResult) bool {
	for _, item := range r.Items {
		if item.Result == domain.OutcomeAvailable {
			return true
		}
	}
	return false
}
