package store

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
)

// MemoryStore keeps hosts and policies in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	hosts    map[int]domain.Host
	policies map[int]map[string]*domain.ContainerPolicy
	nextID   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hosts:    make(map[int]domain.Host),
		policies: make(map[int]map[string]*domain.ContainerPolicy),
		nextID:   1,
	}
}

func (s *MemoryStore) ListHosts(_ context.Context) ([]domain.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hosts := make([]domain.Host, 0, len(s.hosts))
	for _, h := range s.hosts {
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].ID < hosts[j].ID })
	return hosts, nil
}

func (s *MemoryStore) ListEnabledHosts(ctx context.Context) ([]domain.Host, error) {
	hosts, err := s.ListHosts(ctx)
	if err != nil {
		return nil, err
	}
	return enabledOnly(hosts), nil
}

func (s *MemoryStore) GetHost(_ context.Context, id int) (domain.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hosts[id]
	if !ok {
		return domain.Host{}, NewNotFoundError("host", strconv.Itoa(id))
	}
	return h, nil
}

func (s *MemoryStore) CreateHost(_ context.Context, host domain.Host) (domain.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTaken(host.Name, 0) {
		return domain.Host{}, NewConflictError(host.Name, "host name is already taken")
	}
	host.ID = s.nextID
	s.nextID++
	s.hosts[host.ID] = host
	return host, nil
}

func (s *MemoryStore) UpdateHost(_ context.Context, host domain.Host) (domain.Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hosts[host.ID]; !ok {
		return domain.Host{}, NewNotFoundError("host", strconv.Itoa(host.ID))
	}
	if s.nameTaken(host.Name, host.ID) {
		return domain.Host{}, NewConflictError(host.Name, "host name is already taken")
	}
	s.hosts[host.ID] = host
	return host, nil
}

func (s *MemoryStore) nameTaken(name string, exceptID int) bool {
	for id, h := range s.hosts {
		if id != exceptID && h.Name == name {
			return true
		}
	}
	return false
}

func (s *MemoryStore) DeleteHost(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hosts[id]; !ok {
		return NewNotFoundError("host", strconv.Itoa(id))
	}
	delete(s.hosts, id)
	delete(s.policies, id)
	return nil
}

func (s *MemoryStore) ListContainerPolicies(_ context.Context, hostID int) ([]domain.ContainerPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policies := make([]domain.ContainerPolicy, 0, len(s.policies[hostID]))
	for _, p := range s.policies[hostID] {
		policies = append(policies, copyPolicy(p))
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies, nil
}

func (s *MemoryStore) UpsertContainer(_ context.Context, patch domain.PolicyPatch) (domain.ContainerPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byName, ok := s.policies[patch.HostID]
	if !ok {
		byName = make(map[string]*domain.ContainerPolicy)
		s.policies[patch.HostID] = byName
	}
	p, ok := byName[patch.Name]
	if !ok {
		p = &domain.ContainerPolicy{HostID: patch.HostID, Name: patch.Name}
		byName[patch.Name] = p
	}
	patch.Apply(p)
	return copyPolicy(p), nil
}

func (s *MemoryStore) PatchContainers(_ context.Context, patches []domain.PolicyPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, patch := range patches {
		if p, ok := s.policies[patch.HostID][patch.Name]; ok {
			patch.Apply(p)
		}
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func copyPolicy(p *domain.ContainerPolicy) domain.ContainerPolicy {
	out := *p
	out.NotifiedAvailableDigests = append([]string(nil), p.NotifiedAvailableDigests...)
	return out
}
