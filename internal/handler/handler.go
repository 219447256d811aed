// Package handler exposes the data service and the reports over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/buildcore/erp-core/internal/analytics"
	"github.com/buildcore/erp-core/internal/engine"
	"github.com/buildcore/erp-core/internal/service"
	"github.com/buildcore/erp-core/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Handler serves /api/v1.
type Handler struct {
	svc     service.Service
	reports *analytics.Reporter
	guard   []gin.HandlerFunc
}

type Option func(*Handler)

// WithReports enables the /reports routes.
func WithReports(r *analytics.Reporter) Option {
	return func(h *Handler) { h.reports = r }
}

// WithWriteGuard installs middleware in front of every mutating route.
func WithWriteGuard(mw ...gin.HandlerFunc) Option {
	return func(h *Handler) { h.guard = append(h.guard, mw...) }
}

func New(svc service.Service, opts ...Option) *Handler {
	h := &Handler{svc: svc}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register mounts the API on r.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api/v1")
	api.GET("/collections", h.listCollections)

	col := api.Group("/collections/:collection")
	col.GET("", h.find)
	col.GET("/count", h.count)
	col.GET("/:id", h.get)
	col.POST("/aggregate", h.aggregate)

	w := col.Group("", h.guard...)
	w.POST("", h.create)
	w.PATCH("/:id", h.update)
	w.DELETE("/:id", h.delete)
	w.POST("/delete", h.deleteMany)
	w.POST("/indexes", h.createIndex)

	if h.reports != nil {
		rep := api.Group("/reports")
		rep.GET("", h.listReports)
		rep.GET("/:name", h.report)
		rep.Group("", h.guard...).POST("/:name/export", h.exportReport)
	}
}

// badRequest marks errors caused by client input.
func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", service.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrDuplicateID):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, analytics.ErrUnknownReport):
		status = http.StatusBadRequest
	case errors.Is(err, analytics.ErrExportDisabled):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// filterParam decodes the "filter" query parameter, a JSON object in the
// MongoDB filter dialect.
func filterParam(c *gin.Context) (engine.Query, error) {
	raw := c.Query("filter")
	if raw == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, badRequest("filter: %v", err)
	}
	return engine.ParseQuery(m), nil
}

func intParam(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest("%s must be a non-negative integer", name)
	}
	return n, nil
}

func findOptions(c *gin.Context) (engine.FindOptions, error) {
	var opts engine.FindOptions
	var err error
	if opts.Sort, err = engine.ParseSortString(c.Query("sort")); err != nil {
		return opts, badRequest("sort: %v", err)
	}
	if opts.Skip, err = intParam(c, "skip"); err != nil {
		return opts, err
	}
	if opts.Limit, err = intParam(c, "limit"); err != nil {
		return opts, err
	}
	opts.Projection = engine.ParseFieldList(c.Query("fields"))
	return opts, nil
}

func bindDocument(c *gin.Context) (engine.Document, error) {
	var doc map[string]any
	if err := c.ShouldBindJSON(&doc); err != nil {
		return nil, badRequest("body: %v", err)
	}
	return engine.Document(doc), nil
}

func (h *Handler) listCollections(c *gin.Context) {
	names, err := h.svc.Collections(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": names, "backend": h.svc.Backend()})
}

func (h *Handler) find(c *gin.Context) {
	q, err := filterParam(c)
	if err != nil {
		writeError(c, err)
		return
	}
	opts, err := findOptions(c)
	if err != nil {
		writeError(c, err)
		return
	}
	ctx, col := c.Request.Context(), c.Param("collection")
	items, err := h.svc.Find(ctx, col, q, opts)
	if err != nil {
		writeError(c, err)
		return
	}
	total, err := h.svc.Count(ctx, col, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

func (h *Handler) count(c *gin.Context) {
	q, err := filterParam(c)
	if err != nil {
		writeError(c, err)
		return
	}
	n, err := h.svc.Count(c.Request.Context(), c.Param("collection"), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handler) get(c *gin.Context) {
	doc, err := h.svc.Get(c.Request.Context(), c.Param("collection"), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if fields := engine.ParseFieldList(c.Query("fields")); fields != nil {
		doc = fields.Apply(doc)
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) create(c *gin.Context) {
	doc, err := bindDocument(c)
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := h.svc.Create(c.Request.Context(), c.Param("collection"), doc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) update(c *gin.Context) {
	patch, err := bindDocument(c)
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := h.svc.Update(c.Request.Context(), c.Param("collection"), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("collection"), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteMany(c *gin.Context) {
	var req struct {
		Filter map[string]any `json:"filter"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("body: %v", err))
		return
	}
	if req.Filter == nil {
		writeError(c, badRequest("filter is required; use {} to match every document"))
		return
	}
	n, err := h.svc.DeleteMany(c.Request.Context(), c.Param("collection"), engine.ParseQuery(req.Filter))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (h *Handler) aggregate(c *gin.Context) {
	var req struct {
		Pipeline engine.Pipeline `json:"pipeline"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("body: %v", err))
		return
	}
	out, err := h.svc.Aggregate(c.Request.Context(), c.Param("collection"), req.Pipeline)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

func (h *Handler) createIndex(c *gin.Context) {
	var req struct {
		Keys engine.SortSpec `json:"keys"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("body: %v", err))
		return
	}
	if err := h.svc.CreateIndex(c.Request.Context(), c.Param("collection"), req.Keys); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

func (h *Handler) listReports(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reports": analytics.Names()})
}

func (h *Handler) report(c *gin.Context) {
	limit, err := intParam(c, "limit")
	if err != nil {
		writeError(c, err)
		return
	}
	rep, err := h.reports.Run(c.Request.Context(), c.Param("name"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) exportReport(c *gin.Context) {
	limit, err := intParam(c, "limit")
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := h.reports.Export(c.Request.Context(), c.Param("name"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
