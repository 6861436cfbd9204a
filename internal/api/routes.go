package api

import (
	"net/http"
	"time"

	"github.com/auto-dns/docker-fleet-updater/internal/progress"
	"github.com/auto-dns/docker-fleet-updater/internal/settings"
	"github.com/emicklei/go-restful/v3"
	"github.com/rs/zerolog"
)

// NewContainer builds the restful container serving the API under /api.
func NewContainer(h *Handler, logger zerolog.Logger) *restful.Container {
	container := restful.NewContainer()

	ws := new(restful.WebService)
	ws.Path("/api").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)
	RegisterRoutes(ws, h)
	container.Add(ws)

	container.Filter(func(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
		start := time.Now()
		chain.ProcessFilter(req, resp)
		url := req.Request.URL.Path
		if req.Request.URL.RawQuery != "" {
			url += "?" + req.Request.URL.RawQuery
		}
		logger.Debug().
			Str("route", req.SelectedRoutePath()).
			Int("status", resp.StatusCode()).
			Dur("took", time.Since(start)).
			Msgf("%s %s", req.Request.Method, url)
	})

	for _, route := range ws.Routes() {
		logger.Debug().Msgf("API endpoint %s %s: %s", route.Method, route.Path, route.Doc)
	}
	return container
}

// RegisterRoutes registers all routes on the WebService.
func RegisterRoutes(ws *restful.WebService, h *Handler) {
	hostID := ws.PathParameter("host_id", "identifier of the host").DataType("integer")
	name := ws.PathParameter("name", "name or id of the container").DataType("string")
	bodyless := []string{http.MethodPost}
	update := ws.QueryParameter("update", "update containers that have a new image").DataType("boolean").Required(false)

	// Runs
	ws.Route(ws.POST("/containers/check").To(h.CheckAll).
		AllowedMethodsWithoutContentType(bodyless).
		Doc("start a run over all enabled hosts").
		Param(update).
		Returns(http.StatusOK, "OK", RunStarted{}).
		Returns(http.StatusBadRequest, "Bad Request", APIError{}))

	ws.Route(ws.POST("/containers/check/{host_id}").To(h.CheckHost).
		AllowedMethodsWithoutContentType(bodyless).
		Doc("start a run over one host").
		Param(hostID).
		Param(update).
		Returns(http.StatusOK, "OK", RunStarted{}).
		Returns(http.StatusNotFound, "Not Found", APIError{}).
		Returns(http.StatusConflict, "Host Disabled", APIError{}))

	ws.Route(ws.POST("/containers/check/{host_id}/{name}").To(h.CheckContainer).
		AllowedMethodsWithoutContentType(bodyless).
		Doc("start a run over the group of one container").
		Param(hostID).
		Param(name).
		Param(update).
		Returns(http.StatusOK, "OK", RunStarted{}).
		Returns(http.StatusNotFound, "Not Found", APIError{}).
		Returns(http.StatusConflict, "Host Disabled", APIError{}))

	ws.Route(ws.GET("/containers/progress").To(h.Progress).
		Doc("get the progress of a run").
		Param(ws.QueryParameter("cache_id", "key returned when the run was started").DataType("string").Required(true)).
		Returns(http.StatusOK, "OK", progress.Entry{}).
		Returns(http.StatusBadRequest, "Bad Request", APIError{}))

	// Containers
	ws.Route(ws.GET("/containers/{host_id}/list").To(h.ListContainers).
		Doc("list the containers of a host with their policies").
		Param(hostID).
		Returns(http.StatusOK, "OK", []ContainerItem{}).
		Returns(http.StatusNotFound, "Not Found", APIError{}).
		Returns(http.StatusConflict, "Host Disabled", APIError{}))

	ws.Route(ws.GET("/containers/{host_id}/{name}").To(h.GetContainer).
		Doc("inspect a container").
		Param(hostID).
		Param(name).
		Returns(http.StatusOK, "OK", ContainerDetail{}).
		Returns(http.StatusNotFound, "Not Found", APIError{}).
		Returns(http.StatusConflict, "Host Disabled", APIError{}))

	ws.Route(ws.PATCH("/containers/{host_id}/{name}").To(h.PatchContainer).
		Doc("change the check and update flags of a container").
		Param(hostID).
		Param(name).
		Reads(ContainerPatch{}).
		Returns(http.StatusOK, "OK", ContainerItem{}).
		Returns(http.StatusNotFound, "Not Found", APIError{}).
		Returns(http.StatusConflict, "Host Disabled", APIError{}))

	// Hosts
	ws.Route(ws.GET("/hosts").To(h.ListHosts).
		Doc("list hosts").
		Returns(http.StatusOK, "OK", []HostView{}))

	ws.Route(ws.POST("/hosts").To(h.CreateHost).
		Doc("create a host").
		Reads(HostInput{}).
		Returns(http.StatusCreated, "Created", HostView{}).
		Returns(http.StatusBadRequest, "Bad Request", APIError{}).
		Returns(http.StatusConflict, "Conflict", APIError{}))

	ws.Route(ws.GET("/hosts/{host_id}").To(h.GetHost).
		Doc("get a host").
		Param(hostID).
		Returns(http.StatusOK, "OK", HostView{}).
		Returns(http.StatusNotFound, "Not Found", APIError{}))

	ws.Route(ws.PUT("/hosts/{host_id}").To(h.UpdateHost).
		Doc("update a host").
		Param(hostID).
		Reads(HostInput{}).
		Returns(http.StatusOK, "OK", HostView{}).
		Returns(http.StatusBadRequest, "Bad Request", APIError{}).
		Returns(http.StatusNotFound, "Not Found", APIError{}).
		Returns(http.StatusConflict, "Conflict", APIError{}))

	ws.Route(ws.DELETE("/hosts/{host_id}").To(h.DeleteHost).
		Doc("delete a host and its container policies").
		Param(hostID).
		Returns(http.StatusNoContent, "No Content", nil).
		Returns(http.StatusNotFound, "Not Found", APIError{}))

	ws.Route(ws.GET("/hosts/{host_id}/status").To(h.HostStatus).
		Doc("check that the agent of a host answers").
		Param(hostID).
		Returns(http.StatusOK, "OK", HostStatus{}).
		Returns(http.StatusNotFound, "Not Found", APIError{}))

	// Settings
	ws.Route(ws.GET("/settings").To(h.GetSettings).
		Doc("get the runtime settings").
		Returns(http.StatusOK, "OK", settings.Settings{}))

	ws.Route(ws.PATCH("/settings").To(h.PatchSettings).
		Doc("change the runtime settings").
		Reads(settings.Patch{}).
		Returns(http.StatusOK, "OK", settings.Settings{}).
		Returns(http.StatusBadRequest, "Bad Request", APIError{}))

	ws.Route(ws.POST("/settings/test_notification").To(h.TestNotification).
		AllowedMethodsWithoutContentType(bodyless).
		Doc("send a notification rendered from sample results").
		Reads(TestNotification{}).
		Returns(http.StatusNoContent, "No Content", nil).
		Returns(http.StatusBadRequest, "Bad Request", APIError{}).
		Returns(http.StatusInternalServerError, "Internal Server Error", APIError{}))
}
