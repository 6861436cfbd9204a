package core

import (
	"sync"
	"time"

	"github.com/auto-dns/docker-fleet-updater/internal/group"
	"github.com/auto-dns/docker-fleet-updater/internal/progress"
	"github.com/rs/zerolog"
)

type Options struct {
	LabelPrefix        string
	HealthPollInterval time.Duration
	MaxParallelHosts   int // 0 means one goroutine per host
}

// Orchestrator runs checks and updates at group, host and fleet scope. Every scope has
// its own progress entry, and a run is refused while another run of the same scope is
// in progress.
type Orchestrator struct {
	logger   zerolog.Logger
	clients  ClientSource
	store    store
	notifier notifier
	cache    *progress.Cache
	builder  *group.Builder
	opts     Options
	now      func() time.Time
	running  sync.WaitGroup
}

func New(logger zerolog.Logger, clients ClientSource, st store, n notifier, cache *progress.Cache, opts Options) *Orchestrator {
	if opts.HealthPollInterval <= 0 {
		opts.HealthPollInterval = defaultHealthPollInterval
	}
	return &Orchestrator{
		logger:   logger,
		clients:  clients,
		store:    st,
		notifier: n,
		cache:    cache,
		builder:  group.NewBuilder(opts.LabelPrefix),
		opts:     opts,
		now:      time.Now,
	}
}

func (o *Orchestrator) Builder() *group.Builder {
	return o.builder
}
