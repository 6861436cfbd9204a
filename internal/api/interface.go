package api

import (
	"context"

	"github.com/auto-dns/docker-fleet-updater/internal/agent"
	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/auto-dns/docker-fleet-updater/internal/progress"
	"github.com/auto-dns/docker-fleet-updater/internal/settings"
)

// HostAgent is the part of the agent API the handlers call directly.
type HostAgent interface {
	Health(ctx context.Context) (any, error)
	Access(ctx context.Context) (any, error)
	ListContainers(ctx context.Context, all bool) ([]*domain.Container, error)
	InspectContainer(ctx context.Context, nameOrID string) (*domain.Container, error)
}

var _ HostAgent = (*agent.Client)(nil)

// AgentSource hands out agent clients and follows host changes.
type AgentSource interface {
	Agent(host domain.Host) HostAgent
	// Set replaces the client of the host with one built from its current settings.
	Set(host domain.Host)
	Remove(hostID int)
}

// RegistryAgents adapts an agent registry to an AgentSource.
func RegistryAgents(r *agent.Registry) AgentSource {
	return registryAgents{r: r}
}

type registryAgents struct {
	r *agent.Registry
}

func (a registryAgents) Agent(host domain.Host) HostAgent { return a.r.Get(host) }
func (a registryAgents) Set(host domain.Host)            { a.r.Set(host) }
func (a registryAgents) Remove(hostID int)               { a.r.Remove(hostID) }

type orchestrator interface {
	StartAll(ctx context.Context, update bool) string
	StartHost(ctx context.Context, host domain.Host, update bool) (string, error)
	StartContainer(ctx context.Context, host domain.Host, name string, update bool) (string, error)
}

type progressReader interface {
	Get(key string) *progress.Entry
}

type hostStore interface {
	ListHosts(ctx context.Context) ([]domain.Host, error)
	GetHost(ctx context.Context, id int) (domain.Host, error)
	CreateHost(ctx context.Context, host domain.Host) (domain.Host, error)
	UpdateHost(ctx context.Context, host domain.Host) (domain.Host, error)
	DeleteHost(ctx context.Context, id int) error
	ListContainerPolicies(ctx context.Context, hostID int) ([]domain.ContainerPolicy, error)
	UpsertContainer(ctx context.Context, patch domain.PolicyPatch) (domain.ContainerPolicy, error)
}

type settingsStore interface {
	All() settings.Settings
	Apply(p settings.Patch) (settings.Settings, error)
}

type rescheduler interface {
	Reschedule() error
}

type testNotifier interface {
	NotifyWith(ctx context.Context, cfg settings.Notification, results []*domain.HostResult) error
}
