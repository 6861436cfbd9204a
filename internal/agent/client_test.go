package agent

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, secret string, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c := New(ClientConfig{HostID: 1, URL: server.URL + "/", Secret: secret, Timeout: time.Second, LongTimeout: 2 * time.Second})
	t.Cleanup(c.Close)
	return c
}

func TestClientSignsTheBytesItSends(t *testing.T) {
	c := newTestClient(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/image/pull", r.URL.Path)
		assert.Equal(t, `{"image":"nginx:latest"}`, string(body))
		assert.NoError(t, Verify("secret", 30*time.Second, r.Header, r.Method, r.URL.Path, body, time.Now()))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Id":"sha256:new","RepoDigests":["nginx@sha256:bbb"]}`))
	})

	img, err := c.PullImage(context.Background(), "nginx:latest")
	require.NoError(t, err)
	assert.Equal(t, "sha256:new", img.ID)
	assert.Equal(t, []string{"nginx@sha256:bbb"}, img.RepoDigests)
}

func TestClientWithoutSecretSendsOnlyTimestamp(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get(HeaderTimestamp))
		assert.Empty(t, r.Header.Get(HeaderSignature))
		w.Write([]byte(`{"status":"ok"}`))
	})

	out, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status": "ok"}, out)
}

func TestClientEmptyBodyIsNotSent(t *testing.T) {
	c := newTestClient(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)
		assert.NoError(t, Verify("secret", 30*time.Second, r.Header, r.Method, r.URL.Path, nil, time.Now()))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.StartContainer(context.Background(), "web"))
}

func TestClientEscapesContainerNames(t *testing.T) {
	c := newTestClient(t, "secret", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/container/exists/a%2Fb", r.URL.EscapedPath())
		w.Write([]byte(`true`))
	})

	ok, err := c.ContainerExists(context.Background(), "a/b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClientErrorResponses(t *testing.T) {
	t.Run("json detail", func(t *testing.T) {
		c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"No such container: web"}`))
		})

		_, err := c.InspectContainer(context.Background(), "web")
		var agentErr *Error
		require.True(t, errors.As(err, &agentErr))
		assert.Equal(t, http.StatusNotFound, agentErr.StatusCode)
		assert.Equal(t, "No such container: web", agentErr.Detail())
		assert.Equal(t, "agent error 404: No such container: web", agentErr.Error())
	})

	t.Run("plain text", func(t *testing.T) {
		c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		})

		err := c.StopContainer(context.Background(), "web")
		var agentErr *Error
		require.True(t, errors.As(err, &agentErr))
		assert.Equal(t, http.StatusBadGateway, agentErr.StatusCode)
		assert.Equal(t, "bad gateway\n", agentErr.Body)
	})
}

func TestClientChunkedResponse(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["out",`))
		w.(http.Flusher).Flush()
		w.Write([]byte(`"err"]`))
	})

	stdout, stderr, err := c.RunCommand(context.Background(), []string{"network", "connect", "backend", "web"})
	require.NoError(t, err)
	assert.Equal(t, "out", stdout)
	assert.Equal(t, "err", stderr)
}

func TestClientChunkedEmptyResponse(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
	})

	out, err := c.PruneImages(context.Background(), true)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestClientRejectsDisallowedCommand(t *testing.T) {
	called := false
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, _, err := c.RunCommand(context.Background(), []string{"rm", "-rf", "/"})
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.False(t, called)
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	// runs before the server is closed
	t.Cleanup(func() { close(release) })
	c.cfg.Timeout = 50 * time.Millisecond

	_, err := c.ListContainers(context.Background(), true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClientListContainers(t *testing.T) {
	c := newTestClient(t, "", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"all":true}`, string(body))
		w.Write([]byte(`[{"Id":"c1","Name":"/web","Image":"sha256:old","State":{"Status":"running"},"Config":{"Image":"nginx:latest","Labels":{"a":"b"}}}]`))
	})

	containers, err := c.ListContainers(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, "web", domain.ContainerName(containers[0]))
	assert.Equal(t, "nginx:latest", domain.ContainerImageSpec(containers[0]))
	assert.Equal(t, "sha256:old", domain.ContainerImageID(containers[0]))
	assert.True(t, domain.IsRunning(containers[0]))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(time.Minute, zerolog.Nop())
	defer r.Close()

	host := domain.Host{ID: 1, Name: "a", Enabled: true, URL: "http://a:8080", Secret: "x"}
	first := r.Get(host)
	assert.Same(t, first, r.Get(host))

	host.Secret = "y"
	second := r.Get(host)
	assert.NotSame(t, first, second)
	assert.Equal(t, "y", second.Config().Secret)

	replaced := r.Set(host)
	assert.NotSame(t, second, replaced)

	r.Sync([]domain.Host{
		{ID: 2, Name: "b", Enabled: true, URL: "http://b:8080"},
		{ID: 3, Name: "c", Enabled: false, URL: "http://c:8080"},
	})
	assert.Equal(t, 1, r.Len())

	r.Remove(2)
	assert.Equal(t, 0, r.Len())
}
