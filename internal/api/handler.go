package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/auto-dns/docker-fleet-updater/internal/agent"
	"github.com/auto-dns/docker-fleet-updater/internal/core"
	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/auto-dns/docker-fleet-updater/internal/notify"
	"github.com/auto-dns/docker-fleet-updater/internal/settings"
	"github.com/auto-dns/docker-fleet-updater/internal/store"
	"github.com/emicklei/go-restful/v3"
	"github.com/rs/zerolog"
)

// Handler serves the HTTP API.
type Handler struct {
	store        hostStore
	orchestrator orchestrator
	progress     progressReader
	agents       AgentSource
	settings     settingsStore
	scheduler    rescheduler
	notifier     testNotifier
	labelPrefix  string
	logger       zerolog.Logger
}

func NewHandler(
	logger zerolog.Logger,
	labelPrefix string,
	st hostStore,
	orch orchestrator,
	progress progressReader,
	agents AgentSource,
	s settingsStore,
	sched rescheduler,
	n testNotifier,
) *Handler {
	return &Handler{
		store:        st,
		orchestrator: orch,
		progress:     progress,
		agents:       agents,
		settings:     s,
		scheduler:    sched,
		notifier:     n,
		labelPrefix:  labelPrefix,
		logger:       logger,
	}
}

// --- Containers ---

// CheckAll handles POST /containers/check
func (h *Handler) CheckAll(req *restful.Request, resp *restful.Response) {
	update, ok := queryBool(req, resp, "update")
	if !ok {
		return
	}
	key := h.orchestrator.StartAll(req.Request.Context(), update)
	resp.WriteEntity(RunStarted{CacheID: key})
}

// CheckHost handles POST /containers/check/{host_id}
func (h *Handler) CheckHost(req *restful.Request, resp *restful.Response) {
	update, ok := queryBool(req, resp, "update")
	if !ok {
		return
	}
	host, ok := h.lookupHost(req, resp)
	if !ok {
		return
	}
	key, err := h.orchestrator.StartHost(req.Request.Context(), host, update)
	if err != nil {
		h.writeErr(resp, err)
		return
	}
	resp.WriteEntity(RunStarted{CacheID: key})
}

// CheckContainer handles POST /containers/check/{host_id}/{name}
func (h *Handler) CheckContainer(req *restful.Request, resp *restful.Response) {
	update, ok := queryBool(req, resp, "update")
	if !ok {
		return
	}
	host, ok := h.lookupHost(req, resp)
	if !ok {
		return
	}
	key, err := h.orchestrator.StartContainer(req.Request.Context(), host, req.PathParameter("name"), update)
	if err != nil {
		h.writeErr(resp, err)
		return
	}
	resp.WriteEntity(RunStarted{CacheID: key})
}

// Progress handles GET /containers/progress. An unknown or expired key yields null.
func (h *Handler) Progress(req *restful.Request, resp *restful.Response) {
	key := req.QueryParameter("cache_id")
	if key == "" {
		writeError(resp, http.StatusBadRequest, "BadRequest", "cache_id is required")
		return
	}
	entry := h.progress.Get(key)
	if entry == nil {
		resp.Header().Set("Content-Type", restful.MIME_JSON)
		resp.WriteHeader(http.StatusOK)
		_, _ = resp.Write([]byte("null"))
		return
	}
	resp.WriteEntity(entry)
}

// ListContainers handles GET /containers/{host_id}/list
func (h *Handler) ListContainers(req *restful.Request, resp *restful.Response) {
	host, ok := h.lookupEnabledHost(req, resp)
	if !ok {
		return
	}
	ctx := req.Request.Context()
	containers, err := h.agents.Agent(host).ListContainers(ctx, true)
	if err != nil {
		h.writeErr(resp, fmt.Errorf("list containers: %w", err))
		return
	}
	policies, err := h.store.ListContainerPolicies(ctx, host.ID)
	if err != nil {
		h.writeErr(resp, err)
		return
	}

	items := make([]ContainerItem, 0, len(containers))
	for _, c := range containers {
		policy := domain.FindPolicy(policies, domain.ContainerName(c))
		items = append(items, containerItem(host.ID, c, policy, h.labelPrefix))
	}
	resp.WriteEntity(items)
}

// GetContainer handles GET /containers/{host_id}/{name}
func (h *Handler) GetContainer(req *restful.Request, resp *restful.Response) {
	host, ok := h.lookupEnabledHost(req, resp)
	if !ok {
		return
	}
	ctx := req.Request.Context()
	c, err := h.agents.Agent(host).InspectContainer(ctx, req.PathParameter("name"))
	if err != nil {
		h.writeErr(resp, fmt.Errorf("inspect container: %w", err))
		return
	}
	policies, err := h.store.ListContainerPolicies(ctx, host.ID)
	if err != nil {
		h.writeErr(resp, err)
		return
	}
	policy := domain.FindPolicy(policies, domain.ContainerName(c))
	resp.WriteEntity(ContainerDetail{
		Item:    containerItem(host.ID, c, policy, h.labelPrefix),
		Inspect: c,
	})
}

// PatchContainer handles PATCH /containers/{host_id}/{name}. The policy row is created
// when the container has none.
func (h *Handler) PatchContainer(req *restful.Request, resp *restful.Response) {
	var body ContainerPatch
	if err := req.ReadEntity(&body); err != nil {
		writeError(resp, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	host, ok := h.lookupEnabledHost(req, resp)
	if !ok {
		return
	}
	ctx := req.Request.Context()
	name := req.PathParameter("name")
	policy, err := h.store.UpsertContainer(ctx, domain.PolicyPatch{
		HostID:        host.ID,
		Name:          name,
		CheckEnabled:  body.CheckEnabled,
		UpdateEnabled: body.UpdateEnabled,
	})
	if err != nil {
		h.writeErr(resp, err)
		return
	}
	c, err := h.agents.Agent(host).InspectContainer(ctx, name)
	if err != nil {
		h.writeErr(resp, fmt.Errorf("inspect container: %w", err))
		return
	}
	resp.WriteEntity(containerItem(host.ID, c, &policy, h.labelPrefix))
}

// --- Hosts ---

// ListHosts handles GET /hosts
func (h *Handler) ListHosts(req *restful.Request, resp *restful.Response) {
	hosts, err := h.store.ListHosts(req.Request.Context())
	if err != nil {
		h.writeErr(resp, err)
		return
	}
	views := make([]HostView, 0, len(hosts))
	for _, host := range hosts {
		views = append(views, viewHost(host))
	}
	resp.WriteEntity(views)
}

// CreateHost handles POST /hosts
func (h *Handler) CreateHost(req *restful.Request, resp *restful.Response) {
	var body HostInput
	if err := req.ReadEntity(&body); err != nil {
		writeError(resp, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	host := domain.Host{
		Enabled:            true,
		Timeout:            domain.DefaultHostTimeout,
		ContainerHCTimeout: domain.DefaultHealthCheckTimeout,
	}
	body.apply(&host)
	if msg := validateHost(host); msg != "" {
		writeError(resp, http.StatusBadRequest, "BadRequest", msg)
		return
	}

	created, err := h.store.CreateHost(req.Request.Context(), host)
	if err != nil {
		h.writeErr(resp, err)
		return
	}
	if created.Enabled {
		h.agents.Set(created)
	}
	h.logger.Info().Msgf("Host %s (%d) created", created.Name, created.ID)
	resp.WriteHeaderAndEntity(http.StatusCreated, viewHost(created))
}

// GetHost handles GET /hosts/{host_id}
func (h *Handler) GetHost(req *restful.Request, resp *restful.Response) {
	host, ok := h.lookupHost(req, resp)
	if !ok {
		return
	}
	resp.WriteEntity(viewHost(host))
}

// UpdateHost handles PUT /hosts/{host_id}. The agent client of the host is rebuilt, or
// dropped when the host is now disabled.
func (h *Handler) UpdateHost(req *restful.Request, resp *restful.Response) {
	var body HostInput
	if err := req.ReadEntity(&body); err != nil {
		writeError(resp, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	host, ok := h.lookupHost(req, resp)
	if !ok {
		return
	}
	body.apply(&host)
	if msg := validateHost(host); msg != "" {
		writeError(resp, http.StatusBadRequest, "BadRequest", msg)
		return
	}

	updated, err := h.store.UpdateHost(req.Request.Context(), host)
	if err != nil {
		h.writeErr(resp, err)
		return
	}
	h.agents.Remove(updated.ID)
	if updated.Enabled {
		h.agents.Set(updated)
	}
	h.logger.Info().Msgf("Host %s (%d) updated", updated.Name, updated.ID)
	resp.WriteEntity(viewHost(updated))
}

// DeleteHost handles DELETE /hosts/{host_id}
func (h *Handler) DeleteHost(req *restful.Request, resp *restful.Response) {
	host, ok := h.lookupHost(req, resp)
	if !ok {
		return
	}
	h.agents.Remove(host.ID)
	if err := h.store.DeleteHost(req.Request.Context(), host.ID); err != nil {
		h.writeErr(resp, err)
		return
	}
	h.logger.Info().Msgf("Host %s (%d) deleted", host.Name, host.ID)
	resp.WriteHeader(http.StatusNoContent)
}

// HostStatus handles GET /hosts/{host_id}/status. Agent failures are reported in the
// body, not as an error status.
func (h *Handler) HostStatus(req *restful.Request, resp *restful.Response) {
	host, ok := h.lookupHost(req, resp)
	if !ok {
		return
	}
	resp.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	resp.Header().Set("Pragma", "no-cache")
	resp.Header().Set("Expires", "0")

	status := HostStatus{ID: host.ID}
	if !host.Enabled {
		resp.WriteEntity(status)
		return
	}
	ctx := req.Request.Context()
	client := h.agents.Agent(host)
	reachable := true
	if _, err := client.Health(ctx); err != nil {
		reachable, status.Err = false, err.Error()
	} else if _, err := client.Access(ctx); err != nil {
		reachable, status.Err = false, err.Error()
	}
	status.OK = &reachable
	resp.WriteEntity(status)
}

// --- Settings ---

// GetSettings handles GET /settings
func (h *Handler) GetSettings(req *restful.Request, resp *restful.Response) {
	resp.WriteEntity(h.settings.All())
}

// PatchSettings handles PATCH /settings. A changed schedule takes effect immediately.
func (h *Handler) PatchSettings(req *restful.Request, resp *restful.Response) {
	var body settings.Patch
	if err := req.ReadEntity(&body); err != nil {
		writeError(resp, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	applied, err := h.settings.Apply(body)
	if err != nil {
		h.writeErr(resp, err)
		return
	}
	if body.Schedule != nil || body.ScheduleUpdate != nil {
		if err := h.scheduler.Reschedule(); err != nil {
			h.writeErr(resp, fmt.Errorf("reschedule: %w", err))
			return
		}
	}
	resp.WriteEntity(applied)
}

// TestNotification handles POST /settings/test_notification. It renders a fixed sample
// result with the given or current notification settings and sends it.
func (h *Handler) TestNotification(req *restful.Request, resp *restful.Response) {
	var body TestNotification
	if req.Request.ContentLength != 0 {
		if err := req.ReadEntity(&body); err != nil {
			writeError(resp, http.StatusBadRequest, "BadRequest", err.Error())
			return
		}
	}
	cfg := h.settings.All().Notification
	if len(body.URLs) > 0 {
		cfg.URLs = body.URLs
	}
	if body.Title != "" {
		cfg.Title = body.Title
	}
	if body.BodyTemplate != "" {
		cfg.BodyTemplate = body.BodyTemplate
	}
	if len(cfg.URLs) == 0 {
		writeError(resp, http.StatusBadRequest, "BadRequest", "no notification urls configured")
		return
	}

	if err := h.notifier.NotifyWith(req.Request.Context(), cfg, notify.SampleResults()); err != nil {
		writeError(resp, http.StatusInternalServerError, "NotificationFailed", err.Error())
		return
	}
	resp.WriteHeader(http.StatusNoContent)
}

// --- Helpers ---

func (h *Handler) lookupHost(req *restful.Request, resp *restful.Response) (domain.Host, bool) {
	id, err := strconv.Atoi(req.PathParameter("host_id"))
	if err != nil {
		writeError(resp, http.StatusBadRequest, "BadRequest", "host_id must be an integer")
		return domain.Host{}, false
	}
	host, err := h.store.GetHost(req.Request.Context(), id)
	if err != nil {
		h.writeErr(resp, err)
		return domain.Host{}, false
	}
	return host, true
}

func (h *Handler) lookupEnabledHost(req *restful.Request, resp *restful.Response) (domain.Host, bool) {
	host, ok := h.lookupHost(req, resp)
	if !ok {
		return domain.Host{}, false
	}
	if !host.Enabled {
		h.writeErr(resp, core.NewHostDisabledError(host.ID))
		return domain.Host{}, false
	}
	return host, true
}

func queryBool(req *restful.Request, resp *restful.Response, name string) (bool, bool) {
	raw := req.QueryParameter(name)
	if raw == "" {
		return false, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(resp, http.StatusBadRequest, "BadRequest", fmt.Sprintf("%s must be a boolean", name))
		return false, false
	}
	return v, true
}

func validateHost(host domain.Host) string {
	switch {
	case strings.TrimSpace(host.Name) == "":
		return "name is required"
	case strings.TrimSpace(host.URL) == "":
		return "url is required"
	}
	return ""
}

// writeErr maps err to a status code and writes it.
func (h *Handler) writeErr(resp *restful.Response, err error) {
	var (
		notFound     *store.NotFoundError
		conflict     *store.ConflictError
		disabled     *core.HostDisabledError
		noContainer  *core.ContainerNotFoundError
		invalid      *settings.ValidationError
		agentFailure *agent.Error
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &noContainer):
		writeError(resp, http.StatusNotFound, "NotFound", err.Error())
	case errors.As(err, &disabled):
		writeError(resp, http.StatusConflict, "HostDisabled", err.Error())
	case errors.As(err, &conflict):
		writeError(resp, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &invalid):
		writeError(resp, http.StatusBadRequest, "BadRequest", err.Error())
	case errors.As(err, &agentFailure):
		if agentFailure.StatusCode == http.StatusNotFound {
			writeError(resp, http.StatusNotFound, "NotFound", err.Error())
			return
		}
		writeError(resp, http.StatusBadGateway, "AgentError", err.Error())
	default:
		h.logger.Error().Err(err).Msg("Request failed")
		writeError(resp, http.StatusInternalServerError, "InternalError", err.Error())
	}
}

func writeError(resp *restful.Response, status int, code, message string) {
	resp.WriteHeaderAndEntity(status, &APIError{Code: code, Message: message})
}
