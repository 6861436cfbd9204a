package group

import "github.com/auto-dns/docker-fleet-updater/internal/domain"

// Item is one container of a group together with the state a run accumulates for it.
type Item struct {
	Container   *domain.Container
	Action      domain.Action
	Protected   bool
	ServiceName string
	ComposeDeps []string
	CustomDeps  []string

	Result    domain.Outcome
	ImageSpec string
	Config    *domain.CreateContainerRequest
	Commands  [][]string
	OldImage  *domain.Image
	NewImage  *domain.Image
}

func (i *Item) Name() string {
	return domain.ContainerName(i.Container)
}

// Group is a set of containers that must be updated together. Items are ordered so that
// dependencies come before their dependents.
type Group struct {
	Name  string
	Items []*Item
}

func (g *Group) Names() []string {
	names := make([]string, len(g.Items))
	for i, item := range g.Items {
		names[i] = item.Name()
	}
	return names
}

func (g *Group) Find(name string) *Item {
	for _, item := range g.Items {
		if item.Name() == name {
			return item
		}
	}
	return nil
}
