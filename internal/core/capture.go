package core

import (
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
)

// captureConfig turns an inspect document into the request that recreates the container.
// The request attaches the primary network only; each further network is joined by a
// post-start "network connect" command.
func captureConfig(c *domain.Container) (*domain.CreateContainerRequest, [][]string, error) {
	name := domain.ContainerName(c)
	if name == "" {
		return nil, nil, NewCaptureError("<unnamed>", "container has no name")
	}
	if c.Config == nil {
		return nil, nil, NewCaptureError(name, "inspect has no Config")
	}
	if c.HostConfig == nil {
		return nil, nil, NewCaptureError(name, "inspect has no HostConfig")
	}

	cfg := *c.Config
	// an auto-generated hostname is the short container id
	if cfg.Hostname != "" && strings.HasPrefix(c.ID, cfg.Hostname) {
		cfg.Hostname = ""
	}
	hostCfg := *c.HostConfig

	req := &domain.CreateContainerRequest{
		Name:       name,
		Config:     &cfg,
		HostConfig: &hostCfg,
	}

	if c.NetworkSettings == nil || len(c.NetworkSettings.Networks) == 0 {
		return req, nil, nil
	}
	mode := hostCfg.NetworkMode
	if mode.IsHost() || mode.IsNone() || mode.IsContainer() {
		return req, nil, nil
	}

	names := make([]string, 0, len(c.NetworkSettings.Networks))
	for n := range c.NetworkSettings.Networks {
		names = append(names, n)
	}
	sort.Strings(names)

	primary := names[0]
	if _, ok := c.NetworkSettings.Networks[string(mode)]; ok {
		primary = string(mode)
	}

	req.NetworkingConfig = &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			primary: endpointInput(c, c.NetworkSettings.Networks[primary]),
		},
	}

	var commands [][]string
	for _, n := range names {
		if n == primary {
			continue
		}
		commands = append(commands, connectCommand(c, n, c.NetworkSettings.Networks[n]))
	}
	return req, commands, nil
}

// endpointInput keeps only the user supplied endpoint settings; everything else is
// assigned by the daemon.
func endpointInput(c *domain.Container, ep *network.EndpointSettings) *network.EndpointSettings {
	if ep == nil {
		return &network.EndpointSettings{}
	}
	return &network.EndpointSettings{
		IPAMConfig: ep.IPAMConfig,
		Links:      ep.Links,
		Aliases:    userAliases(c, ep.Aliases),
		DriverOpts: ep.DriverOpts,
	}
}

// userAliases drops the aliases the daemon adds on its own: the short id and the name.
func userAliases(c *domain.Container, aliases []string) []string {
	name := domain.ContainerName(c)
	var out []string
	for _, a := range aliases {
		if a == "" || a == name || strings.HasPrefix(c.ID, a) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func connectCommand(c *domain.Container, networkName string, ep *network.EndpointSettings) []string {
	cmd := []string{"network", "connect"}
	if ep != nil {
		for _, a := range userAliases(c, ep.Aliases) {
			cmd = append(cmd, "--alias", a)
		}
		if ep.IPAMConfig != nil {
			if ep.IPAMConfig.IPv4Address != "" {
				cmd = append(cmd, "--ip", ep.IPAMConfig.IPv4Address)
			}
			if ep.IPAMConfig.IPv6Address != "" {
				cmd = append(cmd, "--ip6", ep.IPAMConfig.IPv6Address)
			}
		}
	}
	return append(cmd, networkName, domain.ContainerName(c))
}

// mergeWithImage points the captured request at imageSpec and carries over the defaults of
// the new image wherever the container still used the defaults of the old one.
func mergeWithImage(req *domain.CreateContainerRequest, imageSpec string, oldImage, newImage *domain.Image) *domain.CreateContainerRequest {
	merged := *req
	cfg := container.Config{}
	if req.Config != nil {
		cfg = *req.Config
	}
	cfg.Image = imageSpec
	merged.Config = &cfg

	if oldImage == nil || newImage == nil || oldImage.Config == nil || newImage.Config == nil {
		return &merged
	}
	oldDef, newDef := oldImage.Config, newImage.Config

	if slices.Equal(cfg.Cmd, oldDef.Cmd) {
		cfg.Cmd = newDef.Cmd
	}
	if slices.Equal(cfg.Entrypoint, oldDef.Entrypoint) {
		cfg.Entrypoint = newDef.Entrypoint
	}
	if cfg.WorkingDir == oldDef.WorkingDir {
		cfg.WorkingDir = newDef.WorkingDir
	}
	if cfg.User == oldDef.User {
		cfg.User = newDef.User
	}
	if reflect.DeepEqual(cfg.Healthcheck, oldDef.Healthcheck) {
		cfg.Healthcheck = newDef.Healthcheck
	}
	cfg.Env = mergeEnv(cfg.Env, oldDef.Env, newDef.Env)
	cfg.Labels = mergeLabels(cfg.Labels, oldDef.Labels, newDef.Labels)
	return &merged
}

// mergeEnv replaces variables inherited from the old image with the new image's values and
// adds variables the new image introduces. Variables set on the container are kept.
func mergeEnv(current, oldDefaults, newDefaults []string) []string {
	oldMap, newMap := envMap(oldDefaults), envMap(newDefaults)
	seen := make(map[string]struct{}, len(current))
	out := make([]string, 0, len(current)+len(newDefaults))
	for _, kv := range current {
		k, _, _ := strings.Cut(kv, "=")
		seen[k] = struct{}{}
		if old, inherited := oldMap[k]; inherited && old == kv {
			if nv, ok := newMap[k]; ok {
				out = append(out, nv)
			}
			continue
		}
		out = append(out, kv)
	}
	for _, kv := range newDefaults {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := seen[k]; !ok {
			out = append(out, kv)
		}
	}
	return out
}

func envMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		k, _, _ := strings.Cut(kv, "=")
		m[k] = kv
	}
	return m
}

func mergeLabels(current, oldDefaults, newDefaults map[string]string) map[string]string {
	if current == nil && len(newDefaults) == 0 {
		return nil
	}
	out := make(map[string]string, len(current)+len(newDefaults))
	for k, v := range current {
		if old, inherited := oldDefaults[k]; inherited && old == v {
			if nv, ok := newDefaults[k]; ok {
				out[k] = nv
			}
			continue
		}
		out[k] = v
	}
	for k, v := range newDefaults {
		if _, ok := current[k]; !ok {
			out[k] = v
		}
	}
	return out
}
