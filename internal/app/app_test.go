package app

import (
	"context"
	"testing"
	"time"

	"github.com/auto-dns/docker-fleet-updater/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			ListenAddr:      "127.0.0.1:0",
			LabelPrefix:     "dev.fleet-updater",
			ProgressTTL:     time.Minute,
			ProgressSize:    10,
			ShutdownTimeout: time.Second,
		},
		Store: config.StoreConfig{Backend: "memory"},
		Hosts: []config.HostSeed{
			{Name: "alpha", URL: "http://alpha:8001", Enabled: true},
			{Name: "beta", URL: "http://beta:8001"},
		},
	}
}

func TestLoadHostsSeedsOnce(t *testing.T) {
	a, err := New(testConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	require.NoError(t, a.loadHosts(ctx))
	require.NoError(t, a.loadHosts(ctx))

	hosts, err := a.store.ListHosts(ctx)
	require.NoError(t, err)
	require.Len(t, hosts, 2)
	assert.Equal(t, "alpha", hosts[0].Name)
	assert.Equal(t, "beta", hosts[1].Name)
	assert.Equal(t, 1, a.registry.Len())
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = "sqlite"

	_, err := New(cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := New(testConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
