package cache

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/papergrade/core/internal/middleware"
	"github.com/papergrade/core/internal/pkg/pagination"
	"github.com/papergrade/core/internal/pkg/response"
)

type putEntryDTO struct {
	Module      string  `json:"module"       binding:"required"`
	ContentType string  `json:"content_type" binding:"required"`
	Identifier  string  `json:"identifier"   binding:"required"`
	Language    string  `json:"language"`
	Title       *string `json:"title"`
	Content     string  `json:"content"      binding:"required"`
	Source      string  `json:"source"       binding:"omitempty,oneof=manual llm import"`
	Subject     string  `json:"subject"`
	ClassLevel  string  `json:"class_level"`
}

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, adminMW gin.HandlerFunc) {
	g := rg.Group("/cache", authMW)
	g.GET("", h.list)
	g.GET("/entry", h.get)
	g.PUT("/entry", adminMW, h.put)
	g.DELETE("/entry", adminMW, h.delete)
}

func keyFromQuery(c *gin.Context) Key {
	return Key{
		Module:      c.Query("module"),
		ContentType: c.Query("content_type"),
		Identifier:  c.Query("identifier"),
		Language:    c.Query("lang"),
	}
}

// GET /cache
func (h *Handler) list(c *gin.Context) {
	items, pag, err := h.store.List(c.Request.Context(), Filter{
		Module:      c.Query("module"),
		ContentType: c.Query("content_type"),
		Language:    c.Query("lang"),
	}, pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

// GET /cache/entry?module=&content_type=&identifier=&lang=
func (h *Handler) get(c *gin.Context) {
	entry, err := h.store.Get(c.Request.Context(), keyFromQuery(c))
	if !h.handleErr(c, err) {
		return
	}
	response.OK(c, entry)
}

// PUT /cache/entry  [admin]
func (h *Handler) put(c *gin.Context) {
	var dto putEntryDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	entry, err := h.store.Put(c.Request.Context(), Key{
		Module:      dto.Module,
		ContentType: dto.ContentType,
		Identifier:  dto.Identifier,
		Language:    dto.Language,
	}, Content{
		Title:      dto.Title,
		Body:       dto.Content,
		Source:     dto.Source,
		Subject:    dto.Subject,
		ClassLevel: dto.ClassLevel,
		CreatedBy:  middleware.CurrentUserRef(c),
	})
	if !h.handleErr(c, err) {
		return
	}
	response.OK(c, entry)
}

// DELETE /cache/entry?module=&content_type=&identifier=&lang=  [admin]
func (h *Handler) delete(c *gin.Context) {
	if !h.handleErr(c, h.store.Delete(c.Request.Context(), keyFromQuery(c))) {
		return
	}
	response.NoContent(c)
}

func (h *Handler) handleErr(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrInvalidKey):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFoundMsg(c, err.Error())
	default:
		response.InternalError(c, err)
	}
	return false
}
