package core

import (
	"context"

	"github.com/auto-dns/docker-fleet-updater/internal/agent"
	"github.com/auto-dns/docker-fleet-updater/internal/domain"
)

// AgentClient is the part of the agent API the orchestrator drives.
type AgentClient interface {
	ListContainers(ctx context.Context, all bool) ([]*domain.Container, error)
	ContainerExists(ctx context.Context, nameOrID string) (bool, error)
	InspectContainer(ctx context.Context, nameOrID string) (*domain.Container, error)
	CreateContainer(ctx context.Context, req *domain.CreateContainerRequest) (*domain.Container, error)
	StartContainer(ctx context.Context, nameOrID string) error
	StopContainer(ctx context.Context, nameOrID string) error
	RemoveContainer(ctx context.Context, nameOrID string) error
	InspectImage(ctx context.Context, specOrID string) (*domain.Image, error)
	PullImage(ctx context.Context, image string) (*domain.Image, error)
	TagImage(ctx context.Context, specOrID, tag string) error
	PruneImages(ctx context.Context, all bool) (string, error)
	RunCommand(ctx context.Context, command []string) (string, string, error)
}

var _ AgentClient = (*agent.Client)(nil)

// ClientSource returns the agent client of a host.
type ClientSource func(host domain.Host) AgentClient

// RegistryClients adapts an agent registry to a ClientSource.
func RegistryClients(r *agent.Registry) ClientSource {
	return func(host domain.Host) AgentClient {
		return r.Get(host)
	}
}

type store interface {
	ListEnabledHosts(ctx context.Context) ([]domain.Host, error)
	ListContainerPolicies(ctx context.Context, hostID int) ([]domain.ContainerPolicy, error)
	// PatchContainers applies every patch in one transaction. Patches addressing a
	// container without a stored policy are ignored.
	PatchContainers(ctx context.Context, patches []domain.PolicyPatch) error
}

type notifier interface {
	Notify(ctx context.Context, results []*domain.HostResult) error
}
