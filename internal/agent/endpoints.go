package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
)

type listContainersBody struct {
	All bool `json:"all"`
}

type imageRefBody struct {
	SpecOrID string `json:"spec_or_id"`
}

type pullImageBody struct {
	Image string `json:"image"`
}

type tagImageBody struct {
	SpecOrID string `json:"spec_or_id"`
	Tag      string `json:"tag"`
}

type listImagesBody struct {
	RepositoryOrTag string `json:"repository_or_tag,omitempty"`
	All             bool   `json:"all"`
}

type pruneImagesBody struct {
	All     bool                `json:"all"`
	Filters map[string][]string `json:"filters,omitempty"`
}

type runCommandBody struct {
	Command []string `json:"command"`
}

// Health reports whether the agent answers its public health endpoint.
func (c *Client) Health(ctx context.Context) (any, error) {
	var out any
	err := c.request(ctx, http.MethodGet, "/api/public/health", nil, false, &out)
	return out, err
}

// Access checks that the agent accepts this client's signature.
func (c *Client) Access(ctx context.Context) (any, error) {
	var out any
	err := c.request(ctx, http.MethodGet, "/api/public/access", nil, false, &out)
	return out, err
}

func (c *Client) ListContainers(ctx context.Context, all bool) ([]*domain.Container, error) {
	var out []*domain.Container
	if err := c.request(ctx, http.MethodPost, "/api/container/list", listContainersBody{All: all}, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ContainerExists(ctx context.Context, nameOrID string) (bool, error) {
	var out bool
	err := c.request(ctx, http.MethodGet, "/api/container/exists/"+url.PathEscape(nameOrID), nil, false, &out)
	return out, err
}

func (c *Client) InspectContainer(ctx context.Context, nameOrID string) (*domain.Container, error) {
	var out domain.Container
	if err := c.request(ctx, http.MethodGet, "/api/container/inspect/"+url.PathEscape(nameOrID), nil, false, &out); err != nil {
		return nil, err
	}
	if out.ContainerJSONBase == nil {
		return nil, fmt.Errorf("inspect %s: empty response", nameOrID)
	}
	return &out, nil
}

func (c *Client) CreateContainer(ctx context.Context, req *domain.CreateContainerRequest) (*domain.Container, error) {
	var out domain.Container
	if err := c.request(ctx, http.MethodPost, "/api/container/create", req, true, &out); err != nil {
		return nil, err
	}
	if out.ContainerJSONBase == nil {
		return nil, fmt.Errorf("create %s: empty response", req.Name)
	}
	return &out, nil
}

func (c *Client) StartContainer(ctx context.Context, nameOrID string) error {
	return c.request(ctx, http.MethodPost, "/api/container/start/"+url.PathEscape(nameOrID), nil, true, nil)
}

func (c *Client) StopContainer(ctx context.Context, nameOrID string) error {
	return c.request(ctx, http.MethodPost, "/api/container/stop/"+url.PathEscape(nameOrID), nil, true, nil)
}

func (c *Client) RemoveContainer(ctx context.Context, nameOrID string) error {
	return c.request(ctx, http.MethodDelete, "/api/container/remove/"+url.PathEscape(nameOrID), nil, true, nil)
}

func (c *Client) InspectImage(ctx context.Context, specOrID string) (*domain.Image, error) {
	var out domain.Image
	if err := c.request(ctx, http.MethodGet, "/api/image/inspect", imageRefBody{SpecOrID: specOrID}, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListImages(ctx context.Context, repositoryOrTag string) ([]*domain.Image, error) {
	var out []*domain.Image
	body := listImagesBody{RepositoryOrTag: repositoryOrTag, All: true}
	if err := c.request(ctx, http.MethodPost, "/api/image/list", body, false, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PullImage pulls the reference and returns the inspect document of the pulled image.
func (c *Client) PullImage(ctx context.Context, image string) (*domain.Image, error) {
	var out domain.Image
	if err := c.request(ctx, http.MethodPost, "/api/image/pull", pullImageBody{Image: image}, true, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("pull %s: agent returned no image", image)
	}
	return &out, nil
}

func (c *Client) TagImage(ctx context.Context, specOrID, tag string) error {
	return c.request(ctx, http.MethodPost, "/api/image/tag", tagImageBody{SpecOrID: specOrID, Tag: tag}, false, nil)
}

// PruneImages removes dangling images, or every unused image when all is set, and
// returns the agent's textual report.
func (c *Client) PruneImages(ctx context.Context, all bool) (string, error) {
	var out string
	err := c.request(ctx, http.MethodPost, "/api/image/prune", pruneImagesBody{All: all}, true, &out)
	return out, err
}

// RunCommand executes a validated docker CLI command on the agent host.
func (c *Client) RunCommand(ctx context.Context, command []string) (string, string, error) {
	if err := ValidateCommand(command); err != nil {
		return "", "", err
	}
	var out [2]string
	if err := c.request(ctx, http.MethodPost, "/api/command/run", runCommandBody{Command: command}, true, &out); err != nil {
		return "", "", err
	}
	return out[0], out[1], nil
}
