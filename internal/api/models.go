package api

import (
	"time"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/auto-dns/docker-fleet-updater/internal/group"
	"github.com/docker/go-connections/nat"
)

// APIError is the body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunStarted is returned by the check endpoints. CacheID is the key to poll
// /containers/progress with.
type RunStarted struct {
	CacheID string `json:"cache_id"`
}

// ContainerItem is a container of a host joined with its stored policy. The policy fields
// are nil when the container has no policy row yet.
type ContainerItem struct {
	HostID          int         `json:"host_id"`
	Name            string      `json:"name"`
	ContainerID     string      `json:"container_id"`
	Image           string      `json:"image,omitempty"`
	Ports           nat.PortMap `json:"ports,omitempty"`
	Status          string      `json:"status,omitempty"`
	ExitCode        *int        `json:"exit_code,omitempty"`
	Health          string      `json:"health,omitempty"`
	Protected       bool        `json:"protected"`
	CheckEnabled    *bool       `json:"check_enabled,omitempty"`
	UpdateEnabled   *bool       `json:"update_enabled,omitempty"`
	UpdateAvailable *bool       `json:"update_available,omitempty"`
	CheckedAt       *time.Time  `json:"checked_at,omitempty"`
	UpdatedAt       *time.Time  `json:"updated_at,omitempty"`
}

// ContainerDetail is the response of the single-container endpoint.
type ContainerDetail struct {
	Item    ContainerItem     `json:"item"`
	Inspect *domain.Container `json:"inspect"`
}

// ContainerPatch is the body of the policy patch endpoint.
type ContainerPatch struct {
	CheckEnabled  *bool `json:"check_enabled,omitempty"`
	UpdateEnabled *bool `json:"update_enabled,omitempty"`
}

// HostInput is the body of host create and update. Nil fields keep their current value
// on update and take the default on create.
type HostInput struct {
	Name               *string `json:"name,omitempty"`
	Enabled            *bool   `json:"enabled,omitempty"`
	Prune              *bool   `json:"prune,omitempty"`
	PruneAll           *bool   `json:"prune_all,omitempty"`
	URL                *string `json:"url,omitempty"`
	Secret             *string `json:"secret,omitempty"`
	Timeout            *int    `json:"timeout,omitempty"`
	ContainerHCTimeout *int    `json:"container_hc_timeout,omitempty"`
}

func (in HostInput) apply(h *domain.Host) {
	if in.Name != nil {
		h.Name = *in.Name
	}
	if in.Enabled != nil {
		h.Enabled = *in.Enabled
	}
	if in.Prune != nil {
		h.Prune = *in.Prune
	}
	if in.PruneAll != nil {
		h.PruneAll = *in.PruneAll
	}
	if in.URL != nil {
		h.URL = *in.URL
	}
	if in.Secret != nil {
		h.Secret = *in.Secret
	}
	if in.Timeout != nil {
		h.Timeout = *in.Timeout
	}
	if in.ContainerHCTimeout != nil {
		h.ContainerHCTimeout = *in.ContainerHCTimeout
	}
}

// HostView is a host as returned by the API. The agent secret is never echoed.
type HostView struct {
	domain.Host
	HasSecret bool `json:"has_secret"`
}

func viewHost(h domain.Host) HostView {
	v := HostView{Host: h, HasSecret: h.Secret != ""}
	v.Secret = ""
	return v
}

// HostStatus reports whether the agent of a host answers. Ok and Err are omitted for
// disabled hosts.
type HostStatus struct {
	ID  int    `json:"id"`
	OK  *bool  `json:"ok,omitempty"`
	Err string `json:"err,omitempty"`
}

// TestNotification is the body of the test notification endpoint. Empty fields fall back
// to the current settings.
type TestNotification struct {
	URLs         []string `json:"urls,omitempty"`
	Title        string   `json:"title,omitempty"`
	BodyTemplate string   `json:"body_template,omitempty"`
}

func containerItem(hostID int, c *domain.Container, policy *domain.ContainerPolicy, labelPrefix string) ContainerItem {
	item := ContainerItem{
		HostID:      hostID,
		Name:        domain.ContainerName(c),
		ContainerID: domain.ContainerID(c),
		Image:       domain.ContainerImageSpec(c),
		Status:      domain.ContainerStatus(c),
		Health:      domain.ContainerHealth(c),
		Protected:   group.IsProtected(labelPrefix, c),
	}
	if c.ContainerJSONBase != nil {
		if c.HostConfig != nil {
			item.Ports = c.HostConfig.PortBindings
		}
		if c.State != nil {
			code := c.State.ExitCode
			item.ExitCode = &code
		}
	}
	if policy != nil {
		check, update, available := policy.CheckEnabled, policy.UpdateEnabled, policy.UpdateAvailable
		item.CheckEnabled = &check
		item.UpdateEnabled = &update
		item.UpdateAvailable = &available
		item.CheckedAt = policy.CheckedAt
		item.UpdatedAt = policy.UpdatedAt
	}
	return item
}
