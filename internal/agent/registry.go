package agent

import (
	"sync"
	"time"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/rs/zerolog"
)

// Registry holds one client per host. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	clients     map[int]*Client
	longTimeout time.Duration
	logger      zerolog.Logger
}

func NewRegistry(longTimeout time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		clients:     make(map[int]*Client),
		longTimeout: longTimeout,
		logger:      logger,
	}
}

func (r *Registry) configFor(host domain.Host) ClientConfig {
	return ClientConfig{
		HostID:      host.ID,
		URL:         host.URL,
		Secret:      host.Secret,
		Timeout:     host.CallTimeout(),
		LongTimeout: r.longTimeout,
	}
}

// Set replaces the client of the host with a fresh one built from its current settings.
func (r *Registry) Set(host domain.Host) *Client {
	client := New(r.configFor(host))
	r.mu.Lock()
	old := r.clients[host.ID]
	r.clients[host.ID] = client
	r.mu.Unlock()
	if old != nil {
		old.Close()
	}
	r.logger.Debug().Int("host_id", host.ID).Str("url", host.URL).Msg("Agent client registered")
	return client
}

// Get returns the client of the host, creating it on first use. A client whose settings no
// longer match the host is replaced.
func (r *Registry) Get(host domain.Host) *Client {
	cfg := r.configFor(host)
	r.mu.RLock()
	client, ok := r.clients[host.ID]
	r.mu.RUnlock()
	if ok && client.Config() == cfg {
		return client
	}
	return r.Set(host)
}

func (r *Registry) Remove(hostID int) {
	r.mu.Lock()
	client, ok := r.clients[hostID]
	delete(r.clients, hostID)
	r.mu.Unlock()
	if ok {
		client.Close()
		r.logger.Debug().Int("host_id", hostID).Msg("Agent client removed")
	}
}

// Sync registers the enabled hosts and drops clients of every other host.
func (r *Registry) Sync(hosts []domain.Host) {
	keep := make(map[int]struct{}, len(hosts))
	for _, h := range hosts {
		if !h.Enabled {
			continue
		}
		keep[h.ID] = struct{}{}
		r.Get(h)
	}

	r.mu.RLock()
	var stale []int
	for id := range r.clients {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		r.Remove(id)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close drops every client.
func (r *Registry) Close() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[int]*Client)
	r.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}
}
