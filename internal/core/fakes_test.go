package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/docker/docker/api/types/container"
)

// fakeAgent simulates the containers and images of one host.
type fakeAgent struct {
	mu         sync.Mutex
	containers map[string]*domain.Container
	order      []string
	images     map[string]*domain.Image // by id
	tags       map[string]string        // reference -> image id
	pulls      map[string]*domain.Image // reference -> image the registry serves
	calls      []string
	seq        int

	failStop     map[string]bool
	failCreate   map[string]int // remaining failing creates per name
	unhealthy    map[string]bool
	failPull     map[string]bool
	pruneOutput  string
	listErr      error
	commandCalls [][]string
}

var _ AgentClient = (*fakeAgent)(nil)

func newFakeAgent() *fakeAgent {
	return &fakeAgent{
		containers: map[string]*domain.Container{},
		images:     map[string]*domain.Image{},
		tags:       map[string]string{},
		pulls:      map[string]*domain.Image{},
		failStop:   map[string]bool{},
		failCreate: map[string]int{},
		unhealthy:  map[string]bool{},
		failPull:   map[string]bool{},
	}
}

// addImage registers an image under ref, as if it had been pulled before.
func (f *fakeAgent) addImage(ref, id string, digests ...string) *domain.Image {
	img := &domain.Image{ID: id, RepoTags: []string{ref}, RepoDigests: digests, Config: &container.Config{Cmd: []string{"serve"}}}
	f.images[id] = img
	f.tags[ref] = id
	return img
}

// publish makes the registry serve a new image for ref.
func (f *fakeAgent) publish(ref, id string, digests ...string) *domain.Image {
	img := &domain.Image{ID: id, RepoTags: []string{ref}, RepoDigests: digests, Config: &container.Config{Cmd: []string{"serve"}}}
	f.pulls[ref] = img
	return img
}

func (f *fakeAgent) addContainer(name, ref string, running bool, labels map[string]string) *domain.Container {
	status := domain.ContainerStatusExited
	if running {
		status = domain.ContainerStatusRunning
	}
	c := &domain.Container{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID:         "id-" + name,
			Name:       "/" + name,
			Image:      f.tags[ref],
			State:      &container.State{Status: status, Running: running},
			HostConfig: &container.HostConfig{},
		},
		Config: &container.Config{Image: ref, Cmd: []string{"serve"}, Labels: labels},
	}
	f.containers[name] = c
	f.order = append(f.order, name)
	return c
}

func (f *fakeAgent) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeAgent) callsWithPrefix(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAgent) lookup(nameOrID string) (string, *domain.Container) {
	if c, ok := f.containers[nameOrID]; ok {
		return nameOrID, c
	}
	for name, c := range f.containers {
		if c.ID == nameOrID {
			return name, c
		}
	}
	return "", nil
}

func clone(c *domain.Container) *domain.Container {
	base := *c.ContainerJSONBase
	state := *c.State
	if c.State.Health != nil {
		h := *c.State.Health
		state.Health = &h
	}
	base.State = &state
	cfg := *c.Config
	return &domain.Container{ContainerJSONBase: &base, Config: &cfg}
}

func (f *fakeAgent) ListContainers(_ context.Context, _ bool) ([]*domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*domain.Container
	for _, name := range f.order {
		if c, ok := f.containers[name]; ok {
			out = append(out, clone(c))
		}
	}
	return out, nil
}

func (f *fakeAgent) ContainerExists(_ context.Context, nameOrID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, c := f.lookup(nameOrID)
	return c != nil, nil
}

func (f *fakeAgent) InspectContainer(_ context.Context, nameOrID string) (*domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, c := f.lookup(nameOrID)
	if c == nil {
		return nil, fmt.Errorf("no such container: %s", nameOrID)
	}
	return clone(c), nil
}

func (f *fakeAgent) CreateContainer(_ context.Context, req *domain.CreateContainerRequest) (*domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create %s %s", req.Name, req.Config.Image)
	if f.failCreate[req.Name] > 0 {
		f.failCreate[req.Name]--
		return nil, errors.New("create failed")
	}
	if _, exists := f.containers[req.Name]; exists {
		return nil, fmt.Errorf("conflict: %s exists", req.Name)
	}
	imageID, ok := f.tags[req.Config.Image]
	if !ok {
		return nil, fmt.Errorf("no such image: %s", req.Config.Image)
	}
	f.seq++
	cfg := *req.Config
	c := &domain.Container{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID:         fmt.Sprintf("id-%s-%d", req.Name, f.seq),
			Name:       "/" + req.Name,
			Image:      imageID,
			State:      &container.State{Status: "created"},
			HostConfig: req.HostConfig,
		},
		Config: &cfg,
	}
	f.containers[req.Name] = c
	if !containsName(f.order, req.Name) {
		f.order = append(f.order, req.Name)
	}
	return clone(c), nil
}

func containsName(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (f *fakeAgent) StartContainer(_ context.Context, nameOrID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, c := f.lookup(nameOrID)
	f.record("start %s", name)
	if c == nil {
		return fmt.Errorf("no such container: %s", nameOrID)
	}
	c.State.Status = domain.ContainerStatusRunning
	c.State.Running = true
	c.State.Health = nil
	if f.unhealthy[c.Image] {
		c.State.Health = &container.Health{Status: domain.HealthUnhealthy}
	}
	return nil
}

func (f *fakeAgent) StopContainer(_ context.Context, nameOrID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, c := f.lookup(nameOrID)
	f.record("stop %s", name)
	if f.failStop[name] {
		return errors.New("stop failed")
	}
	if c == nil {
		return fmt.Errorf("no such container: %s", nameOrID)
	}
	c.State.Status = domain.ContainerStatusExited
	c.State.Running = false
	return nil
}

func (f *fakeAgent) RemoveContainer(_ context.Context, nameOrID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, c := f.lookup(nameOrID)
	f.record("remove %s", name)
	if c == nil {
		return fmt.Errorf("no such container: %s", nameOrID)
	}
	delete(f.containers, name)
	return nil
}

func (f *fakeAgent) InspectImage(_ context.Context, specOrID string) (*domain.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if img, ok := f.images[specOrID]; ok {
		return img, nil
	}
	if id, ok := f.tags[specOrID]; ok {
		return f.images[id], nil
	}
	return nil, fmt.Errorf("no such image: %s", specOrID)
}

func (f *fakeAgent) PullImage(_ context.Context, ref string) (*domain.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pull %s", ref)
	if f.failPull[ref] {
		return nil, errors.New("registry unavailable")
	}
	img, ok := f.pulls[ref]
	if !ok {
		img = f.images[f.tags[ref]]
	}
	f.images[img.ID] = img
	f.tags[ref] = img.ID
	return img, nil
}

func (f *fakeAgent) TagImage(_ context.Context, specOrID, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("tag %s %s", specOrID, tag)
	id := specOrID
	if t, ok := f.tags[specOrID]; ok {
		id = t
	}
	if _, ok := f.images[id]; !ok {
		return fmt.Errorf("no such image: %s", specOrID)
	}
	f.tags[tag] = id
	return nil
}

func (f *fakeAgent) PruneImages(_ context.Context, all bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("prune %t", all)
	return f.pruneOutput, nil
}

func (f *fakeAgent) RunCommand(_ context.Context, command []string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commandCalls = append(f.commandCalls, command)
	return "", "", nil
}

// fakeStore keeps policies in memory.
type fakeStore struct {
	mu       sync.Mutex
	hosts    []domain.Host
	policies map[int][]domain.ContainerPolicy
	patchErr error
	patches  [][]domain.PolicyPatch
}

func newFakeStore(hosts ...domain.Host) *fakeStore {
	return &fakeStore{hosts: hosts, policies: map[int][]domain.ContainerPolicy{}}
}

func (s *fakeStore) setPolicy(p domain.ContainerPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.HostID] = append(s.policies[p.HostID], p)
}

func (s *fakeStore) policy(hostID int, name string) *domain.ContainerPolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := domain.FindPolicy(s.policies[hostID], name); p != nil {
		cp := *p
		return &cp
	}
	return nil
}

func (s *fakeStore) ListEnabledHosts(context.Context) ([]domain.Host, error) {
	var out []domain.Host
	for _, h := range s.hosts {
		if h.Enabled {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *fakeStore) ListContainerPolicies(_ context.Context, hostID int) ([]domain.ContainerPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ContainerPolicy(nil), s.policies[hostID]...), nil
}

func (s *fakeStore) PatchContainers(_ context.Context, patches []domain.PolicyPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.patchErr != nil {
		return s.patchErr
	}
	s.patches = append(s.patches, patches)
	for _, p := range patches {
		if existing := domain.FindPolicy(s.policies[p.HostID], p.Name); existing != nil {
			p.Apply(existing)
		}
	}
	return nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	batches [][]*domain.HostResult
	err     error
}

func (n *fakeNotifier) Notify(_ context.Context, results []*domain.HostResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.batches = append(n.batches, results)
	return n.err
}
