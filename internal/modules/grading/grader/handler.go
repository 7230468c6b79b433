package grader

import (
	"errors"
	"mime/multipart"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/papergrade/core/internal/middleware"
	"github.com/papergrade/core/internal/models"
	"github.com/papergrade/core/internal/modules/grading/paper"
	"github.com/papergrade/core/internal/pkg/blob"
	"github.com/papergrade/core/internal/pkg/pagination"
	"github.com/papergrade/core/internal/pkg/response"
)

const degradedMessage = "analyzer output could not be parsed"

type Handler struct {
	svc       *Service
	papers    *paper.Handler
	temp      *blob.Temp
	maxUpload int64
	isAdmin   func(userID string) bool
}

func NewHandler(svc *Service, papers *paper.Handler, temp *blob.Temp, maxUpload int64, isAdmin func(string) bool) *Handler {
	return &Handler{svc: svc, papers: papers, temp: temp, maxUpload: maxUpload, isAdmin: isAdmin}
}

// RegisterRoutes mounts the grading routes. writeMW runs only on POST.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, writeMW ...gin.HandlerFunc) {
	g := rg.Group("/gradings", authMW)
	g.POST("", append(writeMW, h.create)...)
	g.GET("", h.list)
	g.GET("/:id", h.get)
}

type gradeRequest struct {
	mode          string
	image         *multipart.FileHeader
	answerSheet   *multipart.FileHeader
	questionPaper *multipart.FileHeader
	paperID       string
}

func formFile(c *gin.Context, field string) *multipart.FileHeader {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil
	}
	return fh
}

// parseGradeRequest validates the multipart form before anything is
// uploaded or analyzed.
func parseGradeRequest(c *gin.Context) (*gradeRequest, error) {
	req := &gradeRequest{
		mode:          strings.ToLower(strings.TrimSpace(c.PostForm("mode"))),
		image:         formFile(c, "image"),
		answerSheet:   formFile(c, "answer_sheet"),
		questionPaper: formFile(c, "question_paper"),
		paperID:       strings.TrimSpace(c.PostForm("paper_id")),
	}
	if req.mode == "" {
		req.mode = models.GradingModeSingle
	}
	switch req.mode {
	case models.GradingModeSingle:
		if req.image == nil {
			return nil, ErrNoImage
		}
	case models.GradingModeDual:
		if req.answerSheet == nil {
			return nil, ErrNoAnswerSheet
		}
		if req.questionPaper == nil && req.paperID == "" {
			return nil, ErrNoPaper
		}
	default:
		return nil, ErrModeMismatch
	}
	return req, nil
}

// POST /gradings  multipart: mode, image | answer_sheet + (question_paper | paper_id)
func (h *Handler) create(c *gin.Context) {
	req, err := parseGradeRequest(c)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	userID := middleware.CurrentUserRef(c)

	var outcome *Outcome
	if req.mode == models.GradingModeSingle {
		path, err := h.temp.SaveFile(req.image, h.maxUpload)
		if err != nil {
			paper.WriteUploadError(c, err)
			return
		}
		defer h.temp.Remove(path)
		outcome, err = h.svc.GradeSingle(ctx, path, userID)
		if err != nil {
			WriteGradeError(c, err)
			return
		}
	} else {
		sheetPath, err := h.temp.SaveFile(req.answerSheet, h.maxUpload)
		if err != nil {
			paper.WriteUploadError(c, err)
			return
		}
		defer h.temp.Remove(sheetPath)

		qp, ok := h.papers.ResolveForm(c, req.questionPaper, req.paperID)
		if !ok {
			return
		}
		outcome, err = h.svc.GradeAgainstPaper(ctx, sheetPath, qp, userID)
		if err != nil {
			WriteGradeError(c, err)
			return
		}
	}

	if outcome.Result.Degraded {
		response.Degraded(c, degradedMessage, outcome.Result)
		return
	}
	response.Created(c, outcome)
}

// GET /gradings
func (h *Handler) list(c *gin.Context) {
	items, pag, err := h.svc.Store().ListByUser(c.Request.Context(), middleware.CurrentUserID(c), pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

// GET /gradings/:id
func (h *Handler) get(c *gin.Context) {
	g, err := h.svc.Store().Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		response.NotFoundMsg(c, err.Error())
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if !h.canRead(c, g) {
		response.NotFoundMsg(c, ErrNotFound.Error())
		return
	}
	response.OK(c, g)
}

func (h *Handler) canRead(c *gin.Context, g *models.Grading) bool {
	if g.UserID == nil {
		return true
	}
	uid := middleware.CurrentUserID(c)
	return *g.UserID == uid || (h.isAdmin != nil && h.isAdmin(uid))
}

// WriteGradeError maps grading failures to a response.
func WriteGradeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNoImage), errors.Is(err, ErrNoAnswerSheet),
		errors.Is(err, ErrNoPaper), errors.Is(err, ErrModeMismatch):
		response.BadRequest(c, err.Error())
	default:
		paper.WriteResolveError(c, err)
	}
}
