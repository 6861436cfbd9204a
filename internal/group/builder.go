package group

import (
	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/auto-dns/docker-fleet-updater/internal/util"
	"github.com/google/uuid"
)

// Builder partitions a host's containers into update groups.
type Builder struct {
	prefix string
	newID  func() string
}

func NewBuilder(labelPrefix string) *Builder {
	if labelPrefix == "" {
		labelPrefix = DefaultLabelPrefix
	}
	return &Builder{prefix: labelPrefix, newID: uuid.NewString}
}

// Key returns the group key of a container: "<project>:<config files>" for compose
// containers and a fresh unique id for standalone ones.
func (b *Builder) Key(c *domain.Container) string {
	labels := domain.ContainerLabels(c)
	project, files := labels[ComposeProjectLabel], labels[ComposeConfigFilesLabel]
	if project != "" || files != "" {
		return project + ":" + files
	}
	return b.newID()
}

func (b *Builder) item(c *domain.Container, policies []domain.ContainerPolicy) *Item {
	pl := ParseLabels(b.prefix, domain.ContainerLabels(c))
	return &Item{
		Container:   c,
		Action:      domain.ActionFor(domain.FindPolicy(policies, domain.ContainerName(c))),
		Protected:   pl.Protected,
		ServiceName: pl.Service,
		ComposeDeps: pl.ComposeDependsOn,
		CustomDeps:  pl.DependsOn,
	}
}

// Build returns every group of the host in discovery order. Each container belongs to at
// least one group; groups whose members are a strict subset of another group are dropped.
func (b *Builder) Build(containers []*domain.Container, policies []domain.ContainerPolicy) []*Group {
	byKey := util.NewDefaultMap[string](func() *Group { return &Group{} })
	for _, c := range containers {
		key := b.Key(c)
		g := byKey.Get(key)
		g.Name = key
		g.Items = append(g.Items, b.item(c, policies))
	}

	for _, g := range byKey.Values() {
		b.pullCustomDeps(g, containers, policies)
	}

	groups := dedupGroups(byKey.Values())
	for _, g := range groups {
		g.Items = sortItems(g.Items)
	}
	return groups
}

// BuildFor returns the group a single target container is processed in. Other containers
// join when they share the target's key or are linked to it by the custom depends_on label
// in either direction, and the dependencies of those join in turn. forceUpdate sets the
// target's action to update regardless of policy.
func (b *Builder) BuildFor(target *domain.Container, containers []*domain.Container, policies []domain.ContainerPolicy, forceUpdate bool) *Group {
	targetName := domain.ContainerName(target)
	targetKey := b.Key(target)
	targetItem := b.item(target, policies)
	if forceUpdate {
		targetItem.Action = domain.ActionUpdate
	}
	targetDeps := util.Set(targetItem.CustomDeps)

	g := &Group{Name: targetKey, Items: []*Item{targetItem}}
	for _, c := range containers {
		name := domain.ContainerName(c)
		if c == target || name == targetName {
			continue
		}
		deps := ParseDependencies(domain.ContainerLabels(c)[b.prefix+".depends_on"])
		_, targetNeedsIt := targetDeps[name]
		if b.Key(c) == targetKey || targetNeedsIt || contains(deps, targetName) {
			g.Items = append(g.Items, b.item(c, policies))
		}
	}
	b.pullCustomDeps(g, containers, policies)

	g.Items = sortItems(g.Items)
	return g
}

// pullCustomDeps adds containers named by a member's custom depends_on label, including
// those named by members it added, until the group stops growing.
func (b *Builder) pullCustomDeps(g *Group, containers []*domain.Container, policies []domain.ContainerPolicy) {
	members := util.Set(g.Names())
	pending := g.Items
	for len(pending) > 0 {
		wanted := make(map[string]struct{})
		for _, item := range pending {
			for _, dep := range item.CustomDeps {
				wanted[dep] = struct{}{}
			}
		}
		pending = nil
		for _, c := range containers {
			name := domain.ContainerName(c)
			if _, ok := members[name]; ok {
				continue
			}
			if _, ok := wanted[name]; !ok {
				continue
			}
			item := b.item(c, policies)
			g.Items = append(g.Items, item)
			pending = append(pending, item)
			members[name] = struct{}{}
		}
	}
}

type nameSet map[string]struct{}

func (s nameSet) subsetOf(o nameSet) bool {
	if len(s) > len(o) {
		return false
	}
	for n := range s {
		if _, ok := o[n]; !ok {
			return false
		}
	}
	return true
}

// dedupGroups keeps the first group of every distinct member set, then drops groups whose
// members are a strict subset of another group's.
func dedupGroups(groups []*Group) []*Group {
	type candidate struct {
		names nameSet
		group *Group
	}

	var unique []candidate
outer:
	for _, g := range groups {
		names := nameSet(util.Set(g.Names()))
		for _, u := range unique {
			if len(u.names) == len(names) && names.subsetOf(u.names) {
				continue outer
			}
		}
		unique = append(unique, candidate{names: names, group: g})
	}

	var result []*Group
	for i, c := range unique {
		strictSubset := false
		for j, o := range unique {
			if i != j && len(c.names) < len(o.names) && c.names.subsetOf(o.names) {
				strictSubset = true
				break
			}
		}
		if !strictSubset {
			result = append(result, c.group)
		}
	}
	return result
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
