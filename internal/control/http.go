package control

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codingbear/mcrouter/internal/apperr"
	"github.com/codingbear/mcrouter/internal/store"
)

// Handler binds an Adapter (plus the admission log) to Gin routes.
type Handler struct {
	adapter *Adapter
	admits  *store.DB
	apiKey  string
}

// NewHandler builds a Handler. admits may be nil, in which case
// /admissions answers with an empty list (cmd/server always passes
// the store; tests may omit it).
func NewHandler(adapter *Adapter, admits *store.DB, apiKey string) *Handler {
	return &Handler{adapter: adapter, admits: admits, apiKey: apiKey}
}

// Router builds the Gin engine serving the control-plane surface
// (§6.1): CRUD over /routes, kick endpoints, session/admission
// visibility, and the public /health and /ping checks.
func (h *Handler) Router() *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "X-API-Key, Content-Type")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.GET("/health", h.health)
	r.GET("/ping", h.ping)

	protected := r.Group("")
	protected.Use(h.requireAPIKey)
	{
		protected.GET("/routes", h.listRoutes)
		protected.GET("/routes/:domain", h.getRoute)
		protected.PUT("/routes/:domain", h.upsertRoute)
		protected.DELETE("/routes/:domain", h.removeRoute)

		protected.GET("/sessions", h.listSessions)
		protected.POST("/sessions/kick/by-id/:id", h.kickByID)
		protected.POST("/sessions/kick/by-username/:username", h.kickByUsername)
		protected.POST("/sessions/kick/by-ip/:ip", h.kickByIP)
		protected.POST("/sessions/kick/by-uuid/:uuid", h.kickByUUID)

		protected.GET("/admissions", h.listAdmissions)
	}

	return r
}

// requireAPIKey enforces spec.md §4.I: every control-plane call must
// carry an X-API-Key header matching the configured secret.
func (h *Handler) requireAPIKey(c *gin.Context) {
	key := c.GetHeader("X-API-Key")
	if key == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
		return
	}
	if key != h.apiKey {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid api key"})
		return
	}
	c.Next()
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) ping(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

func (h *Handler) listRoutes(c *gin.Context) {
	c.JSON(http.StatusOK, h.adapter.ListRoutes())
}

func (h *Handler) getRoute(c *gin.Context) {
	route, ok := h.adapter.GetRoute(c.Param("domain"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
		return
	}
	c.JSON(http.StatusOK, route)
}

type upsertRouteRequest struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (h *Handler) upsertRoute(c *gin.Context) {
	var req upsertRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	domain := c.Param("domain")
	_, existed := h.adapter.GetRoute(domain)

	if err := h.adapter.UpsertRoute(domain, req.Host, req.Port); err != nil {
		writeErr(c, err)
		return
	}
	if existed {
		c.JSON(http.StatusOK, gin.H{"domain": domain, "host": req.Host, "port": req.Port})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"domain": domain, "host": req.Host, "port": req.Port})
}

func (h *Handler) removeRoute(c *gin.Context) {
	if err := h.adapter.RemoveRoute(c.Param("domain")); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.adapter.ListSessions())
}

func (h *Handler) kickByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if !h.adapter.KickByID(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kicked": 1})
}

func (h *Handler) kickByUsername(c *gin.Context) {
	port, err := strconv.Atoi(c.Query("port"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "port query param required"})
		return
	}
	n := h.adapter.KickByUsername(c.Param("username"), port)
	if n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kicked": n})
}

func (h *Handler) kickByIP(c *gin.Context) {
	port, err := strconv.Atoi(c.Query("port"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "port query param required"})
		return
	}
	n := h.adapter.KickByIP(c.Param("ip"), port)
	if n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kicked": n})
}

func (h *Handler) kickByUUID(c *gin.Context) {
	port, err := strconv.Atoi(c.Query("port"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "port query param required"})
		return
	}
	n := h.adapter.KickByUUID(c.Param("uuid"), port)
	if n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"kicked": n})
}

func (h *Handler) listAdmissions(c *gin.Context) {
	if h.admits == nil {
		c.JSON(http.StatusOK, []store.Admission{})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	rows, err := h.admits.ListAdmissions(c.Query("domain"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

func writeErr(c *gin.Context, err error) {
	if kind, ok := apperr.KindOf(err); ok && kind == apperr.ControlValidation {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
