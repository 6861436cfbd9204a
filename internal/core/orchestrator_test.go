package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/auto-dns/docker-fleet-updater/internal/group"
	"github.com/auto-dns/docker-fleet-updater/internal/progress"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHost = domain.Host{ID: 1, Name: "alpha", Enabled: true, URL: "http://alpha:8080", ContainerHCTimeout: 1}

type harness struct {
	agent    *fakeAgent
	store    *fakeStore
	notifier *fakeNotifier
	cache    *progress.Cache
	o        *Orchestrator
}

func newHarness(t *testing.T, hosts ...domain.Host) *harness {
	t.Helper()
	if len(hosts) == 0 {
		hosts = []domain.Host{testHost}
	}
	h := &harness{
		agent:    newFakeAgent(),
		store:    newFakeStore(hosts...),
		notifier: &fakeNotifier{},
		cache:    progress.New(time.Minute, 100),
	}
	t.Cleanup(h.cache.Close)
	clients := func(domain.Host) AgentClient { return h.agent }
	h.o = New(zerolog.Nop(), clients, h.store, h.notifier, h.cache, Options{HealthPollInterval: time.Millisecond})
	return h
}

// twoContainerHost sets up A and B, B depending on A through the custom label, both
// allowed to update and both with a newer image in the registry.
func (h *harness) twoContainerHost() {
	h.agent.addImage("a:latest", "sha256:a-old", "a@sha256:1")
	h.agent.addImage("b:latest", "sha256:b-old", "b@sha256:1")
	h.agent.publish("a:latest", "sha256:a-new", "a@sha256:2")
	h.agent.publish("b:latest", "sha256:b-new", "b@sha256:2")
	h.agent.addContainer("a", "a:latest", true, nil)
	h.agent.addContainer("b", "b:latest", true, map[string]string{"dev.fleet-updater.depends_on": "a"})
	h.store.setPolicy(domain.ContainerPolicy{HostID: testHost.ID, Name: "a", CheckEnabled: true, UpdateEnabled: true})
	h.store.setPolicy(domain.ContainerPolicy{HostID: testHost.ID, Name: "b", CheckEnabled: true, UpdateEnabled: true})
}

func (h *harness) onlyGroup(t *testing.T) *group.Group {
	t.Helper()
	containers, err := h.agent.ListContainers(context.Background(), true)
	require.NoError(t, err)
	policies, err := h.store.ListContainerPolicies(context.Background(), testHost.ID)
	require.NoError(t, err)
	groups := h.o.Builder().Build(containers, policies)
	require.Len(t, groups, 1)
	return groups[0]
}

func outcomes(r *domain.GroupResult) map[string]domain.Outcome {
	out := map[string]domain.Outcome{}
	for _, item := range r.Items {
		out[item.Name()] = item.Result
	}
	return out
}

func TestUpdateTwoDependentContainers(t *testing.T) {
	h := newHarness(t)
	h.twoContainerHost()
	g := h.onlyGroup(t)
	assert.Equal(t, []string{"a", "b"}, g.Names())

	res := h.o.CheckGroup(context.Background(), testHost, g, true)

	require.NotNil(t, res)
	assert.Equal(t, map[string]domain.Outcome{"a": domain.OutcomeUpdated, "b": domain.OutcomeUpdated}, outcomes(res))
	assert.Equal(t, []string{"stop b", "stop a"}, h.agent.callsWithPrefix("stop"))
	assert.Equal(t, []string{"create a a:latest", "create b b:latest"}, h.agent.callsWithPrefix("create"))

	entry := h.cache.Get(progress.GroupKey(testHost, g.Name))
	require.NotNil(t, entry)
	assert.Equal(t, domain.StatusDone, entry.Status)
	assert.Same(t, res, entry.Result)

	a, err := h.agent.InspectContainer(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "sha256:a-new", a.Image)
	assert.True(t, domain.IsRunning(a))

	policy := h.store.policy(testHost.ID, "b")
	require.NotNil(t, policy)
	assert.False(t, policy.UpdateAvailable)
	assert.NotNil(t, policy.CheckedAt)
	assert.NotNil(t, policy.UpdatedAt)
}

func TestRecreateFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.twoContainerHost()
	h.agent.failCreate["b"] = 1
	g := h.onlyGroup(t)

	res := h.o.CheckGroup(context.Background(), testHost, g, true)

	require.NotNil(t, res)
	assert.Equal(t, map[string]domain.Outcome{"a": domain.OutcomeUpdated, "b": domain.OutcomeRolledBack}, outcomes(res))
	assert.Equal(t, domain.StatusDone, h.cache.Get(progress.GroupKey(testHost, g.Name)).Status)
	assert.Contains(t, h.agent.callsWithPrefix("tag"), "tag sha256:b-old b:latest")

	b, err := h.agent.InspectContainer(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "sha256:b-old", b.Image)
	assert.True(t, domain.IsRunning(b))
}

func TestFailedRollbackStopsFurtherUpdates(t *testing.T) {
	h := newHarness(t)
	h.twoContainerHost()
	h.agent.failCreate["a"] = 2
	g := h.onlyGroup(t)

	res := h.o.CheckGroup(context.Background(), testHost, g, true)

	require.NotNil(t, res)
	// a is gone for good; b still has its update available but is only restarted
	assert.Equal(t, map[string]domain.Outcome{"a": domain.OutcomeFailed, "b": domain.OutcomeAvailable}, outcomes(res))
	assert.Equal(t, domain.StatusDone, h.cache.Get(progress.GroupKey(testHost, g.Name)).Status)
	assert.Equal(t, []string{"create a a:latest", "create a a:latest"}, h.agent.callsWithPrefix("create"))
	assert.Contains(t, h.agent.callsWithPrefix("start"), "start b")

	b, err := h.agent.InspectContainer(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "sha256:b-old", b.Image)
}

func TestStopFailureRestartsStoppedContainers(t *testing.T) {
	h := newHarness(t)
	h.twoContainerHost()
	h.agent.failStop["a"] = true
	g := h.onlyGroup(t)

	res := h.o.CheckGroup(context.Background(), testHost, g, true)

	require.NotNil(t, res)
	assert.Equal(t, domain.StatusError, h.cache.Get(progress.GroupKey(testHost, g.Name)).Status)
	assert.Equal(t, []string{"stop b", "stop a"}, h.agent.callsWithPrefix("stop"))
	assert.Equal(t, []string{"start b"}, h.agent.callsWithPrefix("start"))
	assert.Empty(t, h.agent.callsWithPrefix("create"))
	assert.Empty(t, h.agent.callsWithPrefix("remove"))

	b, err := h.agent.InspectContainer(context.Background(), "b")
	require.NoError(t, err)
	assert.True(t, domain.IsRunning(b))
}

func TestUnhealthyUpdateRollsBack(t *testing.T) {
	h := newHarness(t)
	h.twoContainerHost()
	h.agent.unhealthy["sha256:b-new"] = true
	g := h.onlyGroup(t)

	res := h.o.CheckGroup(context.Background(), testHost, g, true)

	require.NotNil(t, res)
	assert.Equal(t, map[string]domain.Outcome{"a": domain.OutcomeUpdated, "b": domain.OutcomeRolledBack}, outcomes(res))

	b, err := h.agent.InspectContainer(context.Background(), "b")
	require.NoError(t, err, "rolled back container must exist")
	assert.Equal(t, "sha256:b-old", b.Image)
	assert.True(t, domain.IsRunning(b))
}

func TestCheckOnlyRunDoesNotTouchContainers(t *testing.T) {
	h := newHarness(t)
	h.twoContainerHost()
	g := h.onlyGroup(t)

	res := h.o.CheckGroup(context.Background(), testHost, g, false)

	require.NotNil(t, res)
	assert.Equal(t, map[string]domain.Outcome{"a": domain.OutcomeAvailable, "b": domain.OutcomeAvailable}, outcomes(res))
	assert.Empty(t, h.agent.callsWithPrefix("stop"))
	assert.Empty(t, h.agent.callsWithPrefix("create"))
	assert.Equal(t, domain.StatusDone, h.cache.Get(progress.GroupKey(testHost, g.Name)).Status)

	policy := h.store.policy(testHost.ID, "a")
	assert.True(t, policy.UpdateAvailable)
	assert.NotNil(t, policy.CheckedAt)
	assert.Nil(t, policy.UpdatedAt)
}

func TestCheckOnlyPolicyIsNotUpdated(t *testing.T) {
	h := newHarness(t)
	h.agent.addImage("a:latest", "sha256:a-old", "a@sha256:1")
	h.agent.publish("a:latest", "sha256:a-new", "a@sha256:2")
	h.agent.addContainer("a", "a:latest", true, nil)
	h.store.setPolicy(domain.ContainerPolicy{HostID: testHost.ID, Name: "a", CheckEnabled: true})

	res := h.o.CheckGroup(context.Background(), testHost, h.onlyGroup(t), true)

	require.NotNil(t, res)
	assert.Equal(t, domain.OutcomeAvailable, res.Items[0].Result)
	assert.Empty(t, h.agent.callsWithPrefix("stop"))
}

func TestProtectedAndStoppedContainersAreSkipped(t *testing.T) {
	h := newHarness(t)
	h.agent.addImage("db:latest", "sha256:db-old", "db@sha256:1")
	h.agent.addImage("web:latest", "sha256:web-old", "web@sha256:1")
	h.agent.addImage("job:latest", "sha256:job-old", "job@sha256:1")
	h.agent.publish("web:latest", "sha256:web-new", "web@sha256:2")
	labels := func(service string, extra map[string]string) map[string]string {
		l := map[string]string{
			group.ComposeProjectLabel:     "app",
			group.ComposeConfigFilesLabel: "/srv/app/compose.yml",
			group.ComposeServiceLabel:     service,
		}
		for k, v := range extra {
			l[k] = v
		}
		return l
	}
	h.agent.addContainer("db", "db:latest", true, labels("db", map[string]string{"dev.fleet-updater.protected": "true"}))
	h.agent.addContainer("web", "web:latest", true, labels("web", map[string]string{group.ComposeDependsOnLabel: "db"}))
	h.agent.addContainer("job", "job:latest", false, labels("job", nil))
	for _, n := range []string{"db", "web", "job"} {
		h.store.setPolicy(domain.ContainerPolicy{HostID: testHost.ID, Name: n, CheckEnabled: true, UpdateEnabled: true})
	}

	res := h.o.CheckGroup(context.Background(), testHost, h.onlyGroup(t), true)

	require.NotNil(t, res)
	assert.Equal(t, domain.OutcomeUpdated, outcomes(res)["web"])
	assert.Equal(t, domain.OutcomeNotAvailable, outcomes(res)["db"])
	assert.Equal(t, []string{"stop web"}, h.agent.callsWithPrefix("stop"))
}

func TestLocalImageIsNotCheckable(t *testing.T) {
	h := newHarness(t)
	h.agent.addImage("local:dev", "sha256:local")
	h.agent.addContainer("local", "local:dev", true, nil)
	h.store.setPolicy(domain.ContainerPolicy{HostID: testHost.ID, Name: "local", CheckEnabled: true, UpdateEnabled: true})

	res := h.o.CheckGroup(context.Background(), testHost, h.onlyGroup(t), true)

	require.NotNil(t, res)
	assert.Equal(t, domain.OutcomeNotAvailable, res.Items[0].Result)
	assert.Empty(t, h.agent.callsWithPrefix("pull"))
}

func TestPullFailureIsNotAvailable(t *testing.T) {
	h := newHarness(t)
	h.twoContainerHost()
	h.agent.failPull["a:latest"] = true

	res := h.o.CheckGroup(context.Background(), testHost, h.onlyGroup(t), true)

	require.NotNil(t, res)
	assert.Equal(t, map[string]domain.Outcome{"a": domain.OutcomeNotAvailable, "b": domain.OutcomeUpdated}, outcomes(res))
}

func TestGroupRunIsRefusedWhileRunning(t *testing.T) {
	h := newHarness(t)
	h.twoContainerHost()
	g := h.onlyGroup(t)
	key := progress.GroupKey(testHost, g.Name)
	require.True(t, h.cache.Begin(key, domain.StatusChecking))

	assert.Nil(t, h.o.CheckGroup(context.Background(), testHost, g, true))
	assert.Empty(t, h.agent.callsWithPrefix("pull"))
	assert.Equal(t, domain.StatusChecking, h.cache.Get(key).Status)

	h.cache.Update(key, progress.Entry{Status: domain.StatusDone})
	assert.NotNil(t, h.o.CheckGroup(context.Background(), testHost, g, false))
}

func TestCheckHost(t *testing.T) {
	host := testHost
	host.Prune = true
	host.PruneAll = true
	h := newHarness(t, host)
	h.twoContainerHost()
	h.agent.pruneOutput = "Deleted: sha256:a-old\nTotal reclaimed space: 12MB\n"

	res := h.o.CheckHost(context.Background(), host, true)

	require.NotNil(t, res)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, h.agent.pruneOutput, res.PruneResult)
	assert.Equal(t, []string{"prune true"}, h.agent.callsWithPrefix("prune"))
	entry := h.cache.Get(progress.HostKey(host))
	assert.Equal(t, domain.StatusDone, entry.Status)
	assert.Same(t, res, entry.Result)
}

func TestCheckHostFailure(t *testing.T) {
	h := newHarness(t)
	h.agent.listErr = errors.New("agent unreachable")

	assert.Nil(t, h.o.CheckHost(context.Background(), testHost, false))
	entry := h.cache.Get(progress.HostKey(testHost))
	assert.Equal(t, domain.StatusError, entry.Status)
	assert.Nil(t, entry.Result)
}

func TestCheckAllMarksNotifiedDigests(t *testing.T) {
	h := newHarness(t, testHost, domain.Host{ID: 2, Name: "disabled"})
	h.agent.addImage("a:latest", "sha256:a-old", "a@sha256:1")
	h.agent.publish("a:latest", "sha256:a-new", "a@sha256:2")
	h.agent.addContainer("a", "a:latest", true, nil)
	h.store.setPolicy(domain.ContainerPolicy{HostID: testHost.ID, Name: "a", CheckEnabled: true})

	h.o.CheckAll(context.Background(), false)

	entry := h.cache.Get(progress.FleetKey)
	require.NotNil(t, entry)
	assert.Equal(t, domain.StatusDone, entry.Status)
	fleet, ok := entry.Result.(domain.FleetResult)
	require.True(t, ok)
	assert.Len(t, fleet, 1)

	require.Len(t, h.notifier.batches, 1)
	assert.Equal(t, domain.OutcomeAvailable, h.notifier.batches[0][0].Items[0].Result)
	assert.Equal(t, []string{"a@sha256:2"}, h.store.policy(testHost.ID, "a").NotifiedAvailableDigests)

	h.o.CheckAll(context.Background(), false)

	require.Len(t, h.notifier.batches, 2)
	assert.Equal(t, domain.OutcomeAvailableNotified, h.notifier.batches[1][0].Items[0].Result)
	// the cached result is left as produced
	fleet = h.cache.Get(progress.FleetKey).Result.(domain.FleetResult)
	assert.Equal(t, domain.OutcomeAvailable, fleet[testHost.ID].Items[0].Result)
}

func TestCheckAllIgnoresNotifierErrors(t *testing.T) {
	h := newHarness(t)
	h.twoContainerHost()
	h.notifier.err = errors.New("smtp down")

	h.o.CheckAll(context.Background(), false)

	assert.Equal(t, domain.StatusDone, h.cache.Get(progress.FleetKey).Status)
}

func TestCheckAllIsRefusedWhileRunning(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.cache.Begin(progress.FleetKey, domain.StatusUpdating))

	h.o.CheckAll(context.Background(), true)

	assert.Empty(t, h.notifier.batches)
	assert.Equal(t, domain.StatusUpdating, h.cache.Get(progress.FleetKey).Status)
	h.cache.Update(progress.FleetKey, progress.Entry{Status: domain.StatusDone})
}

func TestStartContainer(t *testing.T) {
	h := newHarness(t)
	h.twoContainerHost()

	_, err := h.o.StartContainer(context.Background(), testHost, "missing", true)
	var notFound *ContainerNotFoundError
	require.True(t, errors.As(err, &notFound))

	disabled := testHost
	disabled.Enabled = false
	_, err = h.o.StartContainer(context.Background(), disabled, "a", true)
	var hostErr *HostDisabledError
	require.True(t, errors.As(err, &hostErr))

	key, err := h.o.StartContainer(context.Background(), testHost, "b", false)
	require.NoError(t, err)
	h.o.Wait()

	entry := h.cache.Get(key)
	require.NotNil(t, entry)
	assert.Equal(t, domain.StatusDone, entry.Status)
	res := entry.Result.(*domain.GroupResult)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{res.Items[0].Name(), res.Items[1].Name()})
}

func TestStartHost(t *testing.T) {
	h := newHarness(t)
	h.twoContainerHost()

	key, err := h.o.StartHost(context.Background(), testHost, false)
	require.NoError(t, err)
	assert.Equal(t, progress.HostKey(testHost), key)
	h.o.Wait()
	assert.Equal(t, domain.StatusDone, h.cache.Get(key).Status)
}
