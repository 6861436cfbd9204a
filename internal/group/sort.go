package group

import "github.com/auto-dns/docker-fleet-updater/internal/util"

// sortItems orders items so dependencies precede dependents: first by the custom
// depends_on label (keyed by container name), then by compose depends_on (keyed by
// service name, or container name outside compose).
func sortItems(items []*Item) []*Item {
	byCustom := dependencyOrder(items,
		func(i *Item) string { return i.Name() },
		func(i *Item) []string { return i.CustomDeps },
	)
	return dependencyOrder(byCustom,
		func(i *Item) string {
			if i.ServiceName != "" {
				return i.ServiceName
			}
			return i.Name()
		},
		func(i *Item) []string { return i.ComposeDeps },
	)
}

// dependencyOrder is a depth-first post-order walk. A key is marked visited before its
// dependencies are walked, so a cycle ends the walk instead of looping: the result is
// still a permutation of the input, ordered as far as the acyclic part allows.
func dependencyOrder(items []*Item, key func(*Item) string, deps func(*Item) []string) []*Item {
	byKey := util.NewDefaultMap[string](func() *Item { return nil })
	for _, item := range items {
		k := key(item)
		if _, taken := byKey.Lookup(k); taken {
			// replicas of one service share a key
			k = item.Name()
		}
		byKey.Set(k, item)
	}

	visited := make(map[string]struct{}, byKey.Len())
	result := make([]*Item, 0, len(items))

	var visit func(k string)
	visit = func(k string) {
		if _, ok := visited[k]; ok {
			return
		}
		visited[k] = struct{}{}
		item, ok := byKey.Lookup(k)
		if !ok {
			return
		}
		for _, dep := range deps(item) {
			if _, known := byKey.Lookup(dep); known {
				visit(dep)
			}
		}
		result = append(result, item)
	}

	for _, k := range byKey.Keys() {
		visit(k)
	}
	return result
}
