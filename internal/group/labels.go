package group

import (
	"strings"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
)

const (
	DefaultLabelPrefix = "dev.fleet-updater"

	ComposeProjectLabel     = "com.docker.compose.project"
	ComposeConfigFilesLabel = "com.docker.compose.project.config_files"
	ComposeServiceLabel     = "com.docker.compose.service"
	ComposeDependsOnLabel   = "com.docker.compose.depends_on"
)

// ParsedLabels is what the builder reads from a container's labels.
type ParsedLabels struct {
	Protected        bool
	DependsOn        []string // <prefix>.depends_on, container names
	Service          string
	ComposeDependsOn []string // service names
	Project          string
	ConfigFiles      string
}

func ParseLabels(prefix string, labels map[string]string) ParsedLabels {
	return ParsedLabels{
		Protected:        boolFromLabel(labels[prefix+".protected"]),
		DependsOn:        ParseDependencies(labels[prefix+".depends_on"]),
		Service:          labels[ComposeServiceLabel],
		ComposeDependsOn: ParseDependencies(labels[ComposeDependsOnLabel]),
		Project:          labels[ComposeProjectLabel],
		ConfigFiles:      labels[ComposeConfigFilesLabel],
	}
}

// ParseDependencies reads a depends_on value such as "db:service_healthy:false,cache".
// Only the name before the first colon of every segment is kept.
func ParseDependencies(v string) []string {
	if v == "" {
		return nil
	}
	var deps []string
	for _, segment := range strings.Split(v, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(segment), ":")
		if name = strings.TrimSpace(name); name != "" {
			deps = append(deps, name)
		}
	}
	return deps
}

// IsProtected reports whether the container must never be stopped or recreated.
func IsProtected(prefix string, c *domain.Container) bool {
	return boolFromLabel(domain.ContainerLabels(c)[prefix+".protected"])
}

func boolFromLabel(v string) bool { return strings.EqualFold(strings.TrimSpace(v), "true") }
