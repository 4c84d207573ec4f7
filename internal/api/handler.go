package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/go-citymap/internal/cache"
	"github.com/mr1hm/go-citymap/internal/models"
	"github.com/mr1hm/go-citymap/internal/overlay"
	"github.com/mr1hm/go-citymap/internal/render"
)

type Handler struct {
	store *render.Store
	cache *cache.SceneCache
}

func NewHandler(store *render.Store, sceneCache *cache.SceneCache) *Handler {
	return &Handler{
		store: store,
		cache: sceneCache,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)

	api := r.Group("/api")
	api.POST("/sessions", h.createSession)
	api.GET("/sessions/:id/scene", h.getScene)
	api.POST("/sessions/:id/viewport", h.moveEnd)
	api.POST("/sessions/:id/zoom", h.zoomEnd)
	api.PUT("/sessions/:id/layers/:layer", h.setLayer)
	api.POST("/sessions/:id/select", h.selectMarker)
	api.DELETE("/sessions/:id/select", h.clearSelection)
	api.GET("/sessions/:id/leaves", h.getLeaves)
	api.DELETE("/sessions/:id", h.deleteSession)

	api.GET("/clusters", h.getClusters)
	api.GET("/routes", h.listRoutes)
	api.GET("/routes/:key", h.getRoute)
}

func (h *Handler) health(c *gin.Context) {
	ds := h.store.Dataset()
	layers := gin.H{}
	for _, l := range models.ClusteredLayers {
		layers[string(l)] = gin.H{"seq": ds.Seq(l), "features": ds.Index(l).Len()}
	}
	layers[string(models.LayerAQI)] = gin.H{"seq": ds.Seq(models.LayerAQI), "readings": len(ds.AQI())}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.store.Len(), "layers": layers})
}

func (h *Handler) session(c *gin.Context) (*render.Session, bool) {
	s, err := h.store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return s, true
}

func (h *Handler) createSession(c *gin.Context) {
	q := overlay.ParseQuery(c.Request.URL.Query())
	s := h.store.Create(q)
	c.JSON(http.StatusCreated, gin.H{
		"id":    s.ID,
		"scene": toSceneResponse(s.Render()),
	})
}

func (h *Handler) getScene(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toSceneResponse(s.Render()))
}

type viewportRequest struct {
	West  *float64 `json:"west"`
	South *float64 `json:"south"`
	East  *float64 `json:"east"`
	North *float64 `json:"north"`
	Zoom  *float64 `json:"zoom"`
}

func finite(vals ...*float64) bool {
	for _, v := range vals {
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			return false
		}
	}
	return true
}

func (h *Handler) moveEnd(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req viewportRequest
	if err := c.ShouldBindJSON(&req); err != nil || !finite(req.West, req.South, req.East, req.North, req.Zoom) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "west, south, east, north and zoom are required"})
		return
	}

	bbox := models.NewBoundingBox(*req.West, *req.South, *req.East, *req.North)
	s.MoveEnd(bbox, *req.Zoom)
	c.JSON(http.StatusOK, toSceneResponse(s.Render()))
}

func (h *Handler) zoomEnd(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req struct {
		Zoom *float64 `json:"zoom"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !finite(req.Zoom) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "zoom is required"})
		return
	}

	s.ZoomEnd(*req.Zoom)
	c.JSON(http.StatusOK, toSceneResponse(s.Render()))
}

func (h *Handler) setLayer(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req struct {
		Visible *bool `json:"visible"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Visible == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "visible is required"})
		return
	}

	layer, _ := models.ParseLayer(c.Param("layer"))
	if err := s.SetLayerVisible(layer, *req.Visible); err != nil {
		if errors.Is(err, render.ErrUnknownLayer) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown layer"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to toggle layer"})
		return
	}
	c.JSON(http.StatusOK, toSceneResponse(s.Render()))
}

func (h *Handler) selectMarker(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req struct {
		Key string `json:"key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}

	outcome, err := s.Select(req.Key)
	if err != nil {
		if errors.Is(err, render.ErrMarkerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "marker not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to select marker"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"outcome": outcome,
		"scene":   toSceneResponse(s.Render()),
	})
}

// getLeaves lists the points behind a rendered marker, e.g. to show a
// cluster's members as a list.
func (h *Handler) getLeaves(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}

	markers, err := s.Leaves(key)
	if err != nil {
		if errors.Is(err, render.ErrMarkerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "marker not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list leaves"})
		return
	}
	c.JSON(http.StatusOK, toGeoJSON(markers))
}

func (h *Handler) clearSelection(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.ClearSelection()
	c.JSON(http.StatusOK, toSceneResponse(s.Render()))
}

func (h *Handler) deleteSession(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// getClusters answers a one-off cluster query without a session.
func (h *Handler) getClusters(c *gin.Context) {
	layer, ok := models.ParseLayer(c.Query("layer"))
	if !ok || layer == models.LayerAQI {
		c.JSON(http.StatusBadRequest, gin.H{"error": "layer must be incidents, sensors or services"})
		return
	}
	bbox, ok := parseBBox(c.Query("bbox"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bbox must be west,south,east,north"})
		return
	}
	zoom, err := strconv.Atoi(c.Query("zoom"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "zoom must be an integer"})
		return
	}

	ds := h.store.Dataset()
	idx := ds.Index(layer)
	zoom = idx.ClampZoom(zoom)
	key := cache.Key(layer, idx.Fingerprint(), bbox, zoom)
	if b, hit := h.cache.Get(c.Request.Context(), key); hit {
		c.Header("X-Cache", "hit")
		c.Data(http.StatusOK, "application/geo+json", b)
		return
	}

	results := idx.Query(bbox, zoom)
	markers := make([]render.Marker, 0, len(results))
	for _, r := range results {
		markers = append(markers, render.MarkerFor(layer, r))
	}
	body, err := json.Marshal(toGeoJSON(markers))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode clusters"})
		return
	}
	h.cache.Set(c.Request.Context(), key, body)

	c.Data(http.StatusOK, "application/geo+json", body)
}

func parseBBox(s string) (models.BoundingBox, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return models.BoundingBox{}, false
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return models.BoundingBox{}, false
		}
		v[i] = f
	}
	return models.NewBoundingBox(v[0], v[1], v[2], v[3]), true
}

func (h *Handler) listRoutes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"routes": overlay.RouteKeys()})
}

func (h *Handler) getRoute(c *gin.Context) {
	line := render.RoutePolyline(overlay.LookupRoute(c.Param("key")))
	if line == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
		return
	}
	c.JSON(http.StatusOK, routeFeature(line))
}
