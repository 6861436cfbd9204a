package notify

import (
	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/docker/docker/api/types/container"
)

// SampleResults is a fixed run result with one container per outcome on two hosts. It is
// what test notifications are rendered from.
func SampleResults() []*domain.HostResult {
	sample := func() []*domain.ContainerCheckResult {
		outcomes := []domain.Outcome{
			domain.OutcomeNotAvailable,
			domain.OutcomeUpdated,
			domain.OutcomeAvailable,
			domain.OutcomeAvailableNotified,
			domain.OutcomeRolledBack,
			domain.OutcomeFailed,
		}
		items := make([]*domain.ContainerCheckResult, 0, len(outcomes))
		for _, o := range outcomes {
			items = append(items, &domain.ContainerCheckResult{
				Container: &domain.Container{
					ContainerJSONBase: &container.ContainerJSONBase{
						ID:    "35d6d68589ab16a7b06d26513ecae15a7dee2cdb067be5648074c99a39db9fab",
						Name:  "/hello-world",
						Image: "sha256:1b44b5a3e06a9aae883e7bf25e45c100be0bb81a0e01b32de604f3ac44711634",
						State: &container.State{Status: domain.ContainerStatusExited},
					},
					Config: &container.Config{Image: "docker.io/hello-world:latest"},
				},
				Result: o,
			})
		}
		return items
	}
	prune := "deleted: sha256:05c1acb89ae44b0bc936fdad9c7bcf32a2300ef1dbab9407bb6dd12eaee1c8c3\n\nTotal reclaimed space: 1.5GB\n"
	return []*domain.HostResult{
		{GroupResult: domain.GroupResult{HostID: 1, HostName: "test_host_1", Items: sample()}, PruneResult: prune},
		{GroupResult: domain.GroupResult{HostID: 2, HostName: "test_host_2", Items: sample()}, PruneResult: prune},
	}
}
