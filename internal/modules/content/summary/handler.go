package summary

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/papergrade/core/internal/modules/content/cache"
	"github.com/papergrade/core/internal/modules/grading/analyzer"
	"github.com/papergrade/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.GET("/summaries/:module/:chapter", authMW, h.get)
}

// GET /summaries/:module/:chapter?lang=&class=&only_cache=true
func (h *Handler) get(c *gin.Context) {
	onlyCache, _ := strconv.ParseBool(c.Query("only_cache"))
	res, err := h.svc.Get(c.Request.Context(), Request{
		Module:     c.Param("module"),
		Chapter:    c.Param("chapter"),
		Language:   c.Query("lang"),
		ClassLevel: c.Query("class"),
		OnlyCache:  onlyCache,
	})
	switch {
	case err == nil:
		response.OK(c, res)
	case errors.Is(err, cache.ErrInvalidKey):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrNotCached):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, ErrDisabled):
		response.ServiceUnavailable(c, err.Error())
	case errors.Is(err, analyzer.ErrUnavailable):
		response.BadGateway(c, "summary generation failed")
	default:
		response.InternalError(c, err)
	}
}
