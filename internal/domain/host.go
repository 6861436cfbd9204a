package domain

import "time"

const (
	DefaultHostTimeout        = 5
	DefaultHealthCheckTimeout = 60
)

// Host is a remote machine reachable through one agent.
type Host struct {
	ID                 int    `json:"id"`
	Name               string `json:"name"`
	Enabled            bool   `json:"enabled"`
	Prune              bool   `json:"prune"`
	PruneAll           bool   `json:"prune_all"`
	URL                string `json:"url"`
	Secret             string `json:"secret,omitempty"`
	Timeout            int    `json:"timeout"`              // seconds, per agent call
	ContainerHCTimeout int    `json:"container_hc_timeout"` // seconds to wait for a healthy container
}

func (h Host) CallTimeout() time.Duration {
	if h.Timeout <= 0 {
		return DefaultHostTimeout * time.Second
	}
	return time.Duration(h.Timeout) * time.Second
}

func (h Host) HealthCheckTimeout() time.Duration {
	if h.ContainerHCTimeout <= 0 {
		return DefaultHealthCheckTimeout * time.Second
	}
	return time.Duration(h.ContainerHCTimeout) * time.Second
}

// ContainerPolicy is the stored per-container selection and bookkeeping.
type ContainerPolicy struct {
	HostID                   int        `json:"host_id"`
	Name                     string     `json:"name"`
	CheckEnabled             bool       `json:"check_enabled"`
	UpdateEnabled            bool       `json:"update_enabled"`
	UpdateAvailable          bool       `json:"update_available"`
	CheckedAt                *time.Time `json:"checked_at,omitempty"`
	UpdatedAt                *time.Time `json:"updated_at,omitempty"`
	NotifiedAvailableDigests []string   `json:"notified_available_digests,omitempty"`
}

// PolicyPatch describes a partial write to a stored ContainerPolicy, addressed by host id
// and container name. Nil fields are left untouched.
type PolicyPatch struct {
	HostID                   int
	Name                     string
	CheckEnabled             *bool
	UpdateEnabled            *bool
	UpdateAvailable          *bool
	CheckedAt                *time.Time
	UpdatedAt                *time.Time
	NotifiedAvailableDigests *[]string
}

// Apply writes the non-nil fields of the patch onto p.
func (pp PolicyPatch) Apply(p *ContainerPolicy) {
	if pp.CheckEnabled != nil {
		p.CheckEnabled = *pp.CheckEnabled
	}
	if pp.UpdateEnabled != nil {
		p.UpdateEnabled = *pp.UpdateEnabled
	}
	if pp.UpdateAvailable != nil {
		p.UpdateAvailable = *pp.UpdateAvailable
	}
	if pp.CheckedAt != nil {
		t := *pp.CheckedAt
		p.CheckedAt = &t
	}
	if pp.UpdatedAt != nil {
		t := *pp.UpdatedAt
		p.UpdatedAt = &t
	}
	if pp.NotifiedAvailableDigests != nil {
		p.NotifiedAvailableDigests = append([]string(nil), (*pp.NotifiedAvailableDigests)...)
	}
}

// FindPolicy returns the policy stored for the named container, or nil.
func FindPolicy(policies []ContainerPolicy, name string) *ContainerPolicy {
	for i := range policies {
		if policies[i].Name == name {
			return &policies[i]
		}
	}
	return nil
}
