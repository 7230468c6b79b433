package paper

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/papergrade/core/internal/middleware"
	"github.com/papergrade/core/internal/models"
	"github.com/papergrade/core/internal/modules/grading/analyzer"
	"github.com/papergrade/core/internal/pkg/blob"
	"github.com/papergrade/core/internal/pkg/imageprep"
	"github.com/papergrade/core/internal/pkg/pagination"
	"github.com/papergrade/core/internal/pkg/response"
)

type Handler struct {
	svc       *Service
	temp      *blob.Temp
	maxUpload int64
}

func NewHandler(svc *Service, temp *blob.Temp, maxUpload int64) *Handler {
	return &Handler{svc: svc, temp: temp, maxUpload: maxUpload}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, writeMW ...gin.HandlerFunc) {
	g := rg.Group("/papers", authMW)
	g.POST("", append(writeMW, h.create)...)
	g.GET("", h.list)
	g.GET("/:id", h.get)
}

// POST /papers  multipart: image
func (h *Handler) create(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		response.BadRequest(c, "image is required")
		return
	}
	path, err := h.temp.SaveFile(fh, h.maxUpload)
	if err != nil {
		WriteUploadError(c, err)
		return
	}
	defer h.temp.Remove(path)

	p, reused, err := h.svc.Resolve(c.Request.Context(), path, middleware.CurrentUserRef(c))
	if err != nil {
		WriteResolveError(c, err)
		return
	}
	status := http.StatusCreated
	if reused {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"reused": reused, "paper": p})
}

// ResolveForm turns an uploaded question paper or a paper_id into a stored
// paper. On failure the error response is already written.
func (h *Handler) ResolveForm(c *gin.Context, fh *multipart.FileHeader, paperID string) (*models.QuestionPaper, bool) {
	ctx := c.Request.Context()
	if paperID != "" {
		p, err := h.svc.Repository().Get(ctx, paperID)
		if err != nil {
			WriteResolveError(c, err)
			return nil, false
		}
		return p, true
	}
	path, err := h.temp.SaveFile(fh, h.maxUpload)
	if err != nil {
		WriteUploadError(c, err)
		return nil, false
	}
	defer h.temp.Remove(path)
	p, _, err := h.svc.Resolve(ctx, path, middleware.CurrentUserRef(c))
	if err != nil {
		WriteResolveError(c, err)
		return nil, false
	}
	return p, true
}

// GET /papers
func (h *Handler) list(c *gin.Context) {
	items, pag, err := h.svc.Repository().List(c.Request.Context(), pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

// GET /papers/:id
func (h *Handler) get(c *gin.Context) {
	p, err := h.svc.Repository().Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		response.NotFoundMsg(c, err.Error())
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, p)
}

// WriteUploadError maps a failed temp save to a response.
func WriteUploadError(c *gin.Context, err error) {
	if errors.Is(err, blob.ErrTooLarge) {
		response.TooLarge(c, err.Error())
		return
	}
	response.InternalError(c, err)
}

// WriteResolveError maps paper resolution failures to a response. Extraction
// output the model got wrong is returned with its raw text.
func WriteResolveError(c *gin.Context, err error) {
	var extractErr *ExtractionError
	switch {
	case imageprep.IsBadInput(err):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFoundMsg(c, err.Error())
	case errors.As(err, &extractErr):
		response.Degraded(c, extractErr.Error(), gin.H{"raw_text": extractErr.Raw})
	case errors.Is(err, analyzer.ErrNoProvider):
		response.ServiceUnavailable(c, err.Error())
	case errors.Is(err, analyzer.ErrUnavailable):
		response.BadGateway(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
