package store

import (
	"context"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/auto-dns/docker-fleet-updater/internal/util"
)

// Store persists hosts and per-container policies.
type Store interface {
	ListHosts(ctx context.Context) ([]domain.Host, error)
	ListEnabledHosts(ctx context.Context) ([]domain.Host, error)
	GetHost(ctx context.Context, id int) (domain.Host, error)
	// CreateHost assigns the id. Host names are unique.
	CreateHost(ctx context.Context, host domain.Host) (domain.Host, error)
	UpdateHost(ctx context.Context, host domain.Host) (domain.Host, error)
	// DeleteHost removes the host together with its container policies.
	DeleteHost(ctx context.Context, id int) error

	ListContainerPolicies(ctx context.Context, hostID int) ([]domain.ContainerPolicy, error)
	// UpsertContainer applies the patch, creating the policy row when it does not exist.
	UpsertContainer(ctx context.Context, patch domain.PolicyPatch) (domain.ContainerPolicy, error)
	// PatchContainers applies all patches or none. Patches naming a missing row are
	// ignored.
	PatchContainers(ctx context.Context, patches []domain.PolicyPatch) error

	Close() error
}

func enabledOnly(hosts []domain.Host) []domain.Host {
	return util.Filter(hosts, func(h domain.Host) bool { return h.Enabled })
}
