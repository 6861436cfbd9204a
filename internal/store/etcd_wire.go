package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
)

type etcdHost struct {
	ID                 int    `json:"id"`
	Name               string `json:"name"`
	Enabled            bool   `json:"enabled"`
	Prune              bool   `json:"prune"`
	PruneAll           bool   `json:"prune_all"`
	URL                string `json:"url"`
	Secret             string `json:"secret,omitempty"`
	Timeout            int    `json:"timeout"`
	ContainerHCTimeout int    `json:"container_hc_timeout"`
}

type etcdContainer struct {
	HostID                   int        `json:"host_id"`
	Name                     string     `json:"name"`
	CheckEnabled             bool       `json:"check_enabled"`
	UpdateEnabled            bool       `json:"update_enabled"`
	UpdateAvailable          bool       `json:"update_available"`
	CheckedAt                *time.Time `json:"checked_at,omitempty"`
	UpdatedAt                *time.Time `json:"updated_at,omitempty"`
	NotifiedAvailableDigests []string   `json:"notified_available_digests,omitempty"`
	ModifiedAt               time.Time  `json:"modified_at"`
}

func marshalHost(h domain.Host) (string, error) {
	wire := etcdHost{
		ID:                 h.ID,
		Name:               h.Name,
		Enabled:            h.Enabled,
		Prune:              h.Prune,
		PruneAll:           h.PruneAll,
		URL:                h.URL,
		Secret:             h.Secret,
		Timeout:            h.Timeout,
		ContainerHCTimeout: h.ContainerHCTimeout,
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalHost(raw []byte) (domain.Host, error) {
	var wire etcdHost
	if err := json.Unmarshal(raw, &wire); err != nil {
		return domain.Host{}, fmt.Errorf("decode etcd host: %w", err)
	}
	return domain.Host{
		ID:                 wire.ID,
		Name:               wire.Name,
		Enabled:            wire.Enabled,
		Prune:              wire.Prune,
		PruneAll:           wire.PruneAll,
		URL:                wire.URL,
		Secret:             wire.Secret,
		Timeout:            wire.Timeout,
		ContainerHCTimeout: wire.ContainerHCTimeout,
	}, nil
}

func marshalPolicy(p domain.ContainerPolicy, modified time.Time) (string, error) {
	wire := etcdContainer{
		HostID:                   p.HostID,
		Name:                     p.Name,
		CheckEnabled:             p.CheckEnabled,
		UpdateEnabled:            p.UpdateEnabled,
		UpdateAvailable:          p.UpdateAvailable,
		CheckedAt:                p.CheckedAt,
		UpdatedAt:                p.UpdatedAt,
		NotifiedAvailableDigests: p.NotifiedAvailableDigests,
		ModifiedAt:               modified,
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalPolicy(raw []byte) (domain.ContainerPolicy, error) {
	var wire etcdContainer
	if err := json.Unmarshal(raw, &wire); err != nil {
		return domain.ContainerPolicy{}, fmt.Errorf("decode etcd container: %w", err)
	}
	return domain.ContainerPolicy{
		HostID:                   wire.HostID,
		Name:                     wire.Name,
		CheckEnabled:             wire.CheckEnabled,
		UpdateEnabled:            wire.UpdateEnabled,
		UpdateAvailable:          wire.UpdateAvailable,
		CheckedAt:                wire.CheckedAt,
		UpdatedAt:                wire.UpdatedAt,
		NotifiedAvailableDigests: wire.NotifiedAvailableDigests,
	}, nil
}
