package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yumenosora/otakudb-backend/internal/data/repos"
	"github.com/yumenosora/otakudb-backend/internal/domain/catalog"
	"github.com/yumenosora/otakudb-backend/internal/http/response"
	"github.com/yumenosora/otakudb-backend/internal/services"
)

type CatalogHandler struct {
	catalog services.CatalogService
}

func NewCatalogHandler(catalogService services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalogService}
}

func itemRef(c *gin.Context) (catalog.Ref, error) {
	class, err := catalog.ParseClass(c.Param("class"))
	if err != nil {
		return catalog.Ref{}, err
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return catalog.Ref{}, errors.New("id must be a positive integer")
	}
	return catalog.Ref{Class: class, ID: id}, nil
}

// POST /api/items/:class/:id/view
func (h *CatalogHandler) RecordView(c *gin.Context) {
	ref, err := itemRef(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_item", err)
		return
	}

	if err := h.catalog.RecordView(c.Request.Context(), ref); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "item_not_found", err)
			return
		}
		response.RespondError(c, http.StatusInternalServerError, "view_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"item": ref})
}

// GET /api/items/:class/:id/related?limit=N
func (h *CatalogHandler) Related(c *gin.Context) {
	ref, err := itemRef(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_item", err)
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", errors.New("limit must be a non-negative integer"))
		return
	}

	items, err := h.catalog.Related(c.Request.Context(), ref, limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "related_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"item": ref, "related": items})
}

// POST /api/admin/cache/invalidate/:class/:id — called by the host system
// after it mutates an item, so every cached view embedding it is dropped.
func (h *CatalogHandler) InvalidateItem(c *gin.Context) {
	ref, err := itemRef(c)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_item", err)
		return
	}

	result := h.catalog.InvalidateItem(c.Request.Context(), ref)
	response.RespondOK(c, gin.H{"item": ref, "result": result})
}
