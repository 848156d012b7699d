// Package server hosts the remote document store behind an HTTP API.
//
// The API mirrors the remote.Store contract: path-addressed documents under
// tenants/{tenant}/..., idempotent creation, incremental listing by server
// timestamp, and recursive subtree purge. Each bearer token is bound to one
// tenant and only reaches that tenant's subtree. internal/remote/httpstore
// is the matching client.
package server

import (
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Config holds the server settings.
type Config struct {
	// Tokens maps each bearer token to the tenant it may access. An empty
	// map disables authentication and tenant scoping (local development
	// only).
	Tokens map[string]string
}

// Handler serves the document API from a DocStore.
type Handler struct {
	store *DocStore
	cfg   Config
}

// NewHandler builds a Handler.
func NewHandler(store *DocStore, cfg Config) *Handler {
	return &Handler{store: store, cfg: cfg}
}

// Router builds the gin engine with all routes mounted.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	v1.Use(auth(h.cfg))
	{
		v1.POST("/docs/*path", h.uploadDoc)
		v1.GET("/docs/*path", h.listCollection)
		v1.DELETE("/docs/*path", h.deleteDoc)
		v1.POST("/purge", h.purgeSubtree)
	}
	return r
}

// ctxTenant is the gin context key holding the authenticated tenant.
const ctxTenant = "tenant"

// auth resolves the bearer token to the tenant it is bound to. A token
// grants access to that tenant's subtree only.
func auth(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(cfg.Tokens) == 0 {
			c.Next()
			return
		}
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		tenant, ok := cfg.Tokens[strings.TrimSpace(header[7:])]
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(ctxTenant, tenant)
		c.Next()
	}
}

// tenantScoped rejects paths outside the authenticated tenant's subtree.
// With auth disabled there is no tenant to scope to.
func tenantScoped(c *gin.Context, p string) bool {
	tenant, ok := c.Get(ctxTenant)
	if !ok {
		return true
	}
	if !strings.HasPrefix(p, "tenants/"+tenant.(string)+"/") {
		c.JSON(http.StatusForbidden, gin.H{"error": "path outside tenant scope"})
		return false
	}
	return true
}

// docPath extracts and validates the wildcard path. Every path must be
// tenant-rooted and clean; anything else is rejected before it reaches
// the store.
func docPath(c *gin.Context) (string, bool) {
	p := strings.Trim(c.Param("path"), "/")
	if p == "" || p != path.Clean(p) || !strings.HasPrefix(p, "tenants/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document path"})
		return "", false
	}
	if strings.Contains(p, "..") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document path"})
		return "", false
	}
	if !tenantScoped(c, p) {
		return "", false
	}
	return p, true
}

type uploadRequest struct {
	DocID            string         `json:"doc_id"`
	Data             map[string]any `json:"data" binding:"required"`
	IdempotencyKey   string         `json:"idempotency_key"`
	IdempotencyField string         `json:"idempotency_field"`
}

type uploadResponse struct {
	ID             string `json:"id"`
	ServerModified int64  `json:"server_modified"`
}

func (h *Handler) uploadDoc(c *gin.Context) {
	collection, ok := docPath(c)
	if !ok {
		return
	}
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	id, ts, err := h.store.Upsert(c.Request.Context(), collection, req.DocID,
		req.Data, req.IdempotencyKey, req.IdempotencyField)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, uploadResponse{ID: id, ServerModified: ts})
}

func (h *Handler) listCollection(c *gin.Context) {
	collection, ok := docPath(c)
	if !ok {
		return
	}
	since := int64(0)
	if raw := c.Query("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since parameter"})
			return
		}
		since = parsed
	}

	docs, err := h.store.List(c.Request.Context(), collection, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (h *Handler) deleteDoc(c *gin.Context) {
	full, ok := docPath(c)
	if !ok {
		return
	}
	collection, id := path.Split(full)
	collection = strings.TrimSuffix(collection, "/")
	if collection == "" || id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document path"})
		return
	}

	if err := h.store.Delete(c.Request.Context(), collection, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type purgeRequest struct {
	RootCollection string `json:"root_collection" binding:"required"`
	RootID         string `json:"root_id" binding:"required"`
}

func (h *Handler) purgeSubtree(c *gin.Context) {
	var req purgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}
	if !strings.HasPrefix(req.RootCollection, "tenants/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid root collection"})
		return
	}
	if !tenantScoped(c, req.RootCollection) {
		return
	}

	if err := h.store.PurgeSubtree(c.Request.Context(), req.RootCollection, req.RootID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
