package domain

import (
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
)

// Container is the inspect document of a remote container as reported by the agent.
type Container = container.InspectResponse

const (
	ContainerStatusRunning = "running"
	ContainerStatusExited  = "exited"
	ContainerStatusDead    = "dead"

	HealthStarting  = "starting"
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// ContainerName returns the container name without the leading slash Docker adds.
func ContainerName(c *Container) string {
	if c == nil || c.ContainerJSONBase == nil {
		return ""
	}
	return strings.TrimPrefix(c.Name, "/")
}

func ContainerID(c *Container) string {
	if c == nil || c.ContainerJSONBase == nil {
		return ""
	}
	return c.ID
}

// ContainerLabels never returns nil.
func ContainerLabels(c *Container) map[string]string {
	if c == nil || c.Config == nil || c.Config.Labels == nil {
		return map[string]string{}
	}
	return c.Config.Labels
}

// ContainerImageSpec is the image reference the container was created from, e.g. nginx:latest.
func ContainerImageSpec(c *Container) string {
	if c == nil || c.Config == nil {
		return ""
	}
	return c.Config.Image
}

// ContainerImageID is the id of the image the container currently runs.
func ContainerImageID(c *Container) string {
	if c == nil || c.ContainerJSONBase == nil {
		return ""
	}
	return c.Image
}

func ContainerStatus(c *Container) string {
	if c == nil || c.ContainerJSONBase == nil || c.State == nil {
		return ""
	}
	return c.State.Status
}

func IsRunning(c *Container) bool {
	return ContainerStatus(c) == ContainerStatusRunning
}

// ContainerHealth returns the health status, or "" when the container has no health check.
func ContainerHealth(c *Container) string {
	if c == nil || c.ContainerJSONBase == nil || c.State == nil || c.State.Health == nil {
		return ""
	}
	return c.State.Health.Status
}

// CreateContainerRequest is the body of the agent's container create call.
type CreateContainerRequest struct {
	Name             string                    `json:"name"`
	Config           *container.Config         `json:"config,omitempty"`
	HostConfig       *container.HostConfig     `json:"host_config,omitempty"`
	NetworkingConfig *network.NetworkingConfig `json:"networking_config,omitempty"`
}

// Image is the subset of the image inspect document the orchestrator relies on.
type Image struct {
	ID          string            `json:"Id"`
	RepoTags    []string          `json:"RepoTags,omitempty"`
	RepoDigests []string          `json:"RepoDigests,omitempty"`
	Created     string            `json:"Created,omitempty"`
	Config      *container.Config `json:"Config,omitempty"`
}

// SameDigests compares repo digest sets regardless of order.
func SameDigests(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, d := range a {
		seen[d]++
	}
	for _, d := range b {
		if seen[d] == 0 {
			return false
		}
		seen[d]--
	}
	return true
}
