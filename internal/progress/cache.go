package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/google/uuid"
	"github.com/karlseguin/ccache"
)

const (
	DefaultTTL  = 10 * time.Minute
	DefaultSize = 100
)

// FleetKey is the key of the all-hosts run. It is fixed for the life of the process.
var FleetKey = uuid.NewString()

func HostKey(host domain.Host) string {
	return fmt.Sprintf("%d:%s", host.ID, host.Name)
}

func GroupKey(host domain.Host, groupName string) string {
	return HostKey(host) + ":" + groupName
}

// Entry is the progress of one run. Result is set when the run is done: a
// *domain.GroupResult, *domain.HostResult or domain.FleetResult depending on the scope.
type Entry struct {
	Status domain.Status `json:"status"`
	Result any           `json:"result,omitempty"`
}

// Cache is a bounded TTL map of run progress. Writes go through a mutex so that
// Begin can check and claim a key atomically.
type Cache struct {
	mu    sync.Mutex
	cache *ccache.Cache
	ttl   time.Duration
}

func New(ttl time.Duration, size int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if size <= 0 {
		size = DefaultSize
	}
	prune := uint32(size / 10)
	if prune == 0 {
		prune = 1
	}
	return &Cache{
		cache: ccache.New(ccache.Configure().MaxSize(int64(size)).ItemsToPrune(prune)),
		ttl:   ttl,
	}
}

// Get returns the entry of the key, or nil when it is absent or expired.
func (c *Cache) Get(key string) *Entry {
	item := c.cache.Get(key)
	if item == nil || item.Expired() {
		return nil
	}
	entry, ok := item.Value().(Entry)
	if !ok {
		return nil
	}
	return &entry
}

// Set replaces the entry of the key.
func (c *Cache) Set(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Set(key, entry, c.ttl)
}

// Update merges into the current entry: an empty status or a nil result keeps the
// current value.
func (c *Cache) Update(key string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current := c.Get(key); current != nil {
		if entry.Status == "" {
			entry.Status = current.Status
		}
		if entry.Result == nil {
			entry.Result = current.Result
		}
	}
	c.cache.Set(key, entry, c.ttl)
}

// Begin claims the key for a new run with the given status. It returns false, leaving
// the entry untouched, when a run under the key is still in progress.
func (c *Cache) Begin(key string, status domain.Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current := c.Get(key); current != nil && !current.Status.Finished() {
		return false
	}
	c.cache.Set(key, Entry{Status: status}, c.ttl)
	return true
}

// Busy reports whether a run under the key is in progress.
func (c *Cache) Busy(key string) bool {
	current := c.Get(key)
	return current != nil && !current.Status.Finished()
}

func (c *Cache) Close() {
	c.cache.Stop()
}
