package multipage

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/papergrade/core/internal/middleware"
	"github.com/papergrade/core/internal/modules/grading/grader"
	"github.com/papergrade/core/internal/modules/grading/paper"
	"github.com/papergrade/core/internal/pkg/blob"
	"github.com/papergrade/core/internal/pkg/response"
	"github.com/papergrade/core/internal/pkg/taskqueue"
)

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

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, writeMW ...gin.HandlerFunc) {
	chain := append([]gin.HandlerFunc{authMW}, writeMW...)
	rg.POST("/gradings/pages", append(chain, h.create)...)
	rg.GET("/tasks/:id", authMW, h.getTask)
}

// POST /gradings/pages[?async=true]  multipart: pages (in order), question_paper | paper_id
func (h *Handler) create(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.BadRequest(c, "multipart form required")
		return
	}
	files := form.File["pages"]
	if err := h.svc.CheckPageCount(len(files)); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	paperID := strings.TrimSpace(c.PostForm("paper_id"))
	paperFiles := form.File["question_paper"]
	if len(paperFiles) == 0 && paperID == "" {
		response.BadRequest(c, grader.ErrNoPaper.Error())
		return
	}

	paths := make([]string, 0, len(files))
	handedOff := false
	defer func() {
		if !handedOff {
			h.temp.Remove(paths...)
		}
	}()
	for _, fh := range files {
		p, err := h.temp.SaveFile(fh, h.maxUpload)
		if err != nil {
			paper.WriteUploadError(c, err)
			return
		}
		paths = append(paths, p)
	}

	var upload *multipart.FileHeader
	if len(paperFiles) > 0 {
		upload = paperFiles[0]
	}
	qp, ok := h.papers.ResolveForm(c, upload, paperID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		task, err := h.svc.Enqueue(ctx, qp.ID, paths, middleware.CurrentUserID(c))
		if err != nil {
			response.InternalError(c, err)
			return
		}
		handedOff = true
		response.Accepted(c, viewTask(task))
		return
	}

	g, err := h.svc.GradeFiles(ctx, qp, paths, middleware.CurrentUserRef(c), nil)
	if err != nil {
		WritePageError(c, err)
		return
	}
	response.Created(c, g)
}

// GET /tasks/:id
func (h *Handler) getTask(c *gin.Context) {
	if h.svc.tasks == nil {
		response.NotFound(c)
		return
	}
	task, err := h.svc.tasks.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, taskqueue.ErrTaskNotFound) {
		response.NotFoundMsg(c, err.Error())
		return
	}
	if err != nil {
		response.InternalError(c, err)
		return
	}
	uid := middleware.CurrentUserID(c)
	if task.OwnerID != "" && task.OwnerID != uid && (h.isAdmin == nil || !h.isAdmin(uid)) {
		response.NotFoundMsg(c, taskqueue.ErrTaskNotFound.Error())
		return
	}
	response.OK(c, viewTask(task))
}

type taskView struct {
	ID         string               `json:"id"`
	Type       string               `json:"type"`
	Status     taskqueue.TaskStatus `json:"status"`
	PagesDone  int                  `json:"pages_done"`
	PagesTotal int                  `json:"pages_total"`
	Result     json.RawMessage      `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
	ErrorData  json.RawMessage      `json:"error_data,omitempty"`
}

func viewTask(t *taskqueue.Task) taskView {
	return taskView{
		ID:         t.ID,
		Type:       t.Type,
		Status:     t.Status,
		PagesDone:  t.Progress.Done,
		PagesTotal: t.Progress.Total,
		Result:     t.Result,
		Error:      t.Error,
		ErrorData:  t.ErrorData,
	}
}

// WritePageError maps a multi-page failure to a response. Unusable
// analyzer output is returned with the page number and raw text.
func WritePageError(c *gin.Context, err error) {
	var pageErr *PageError
	switch {
	case errors.Is(err, ErrNoPages), errors.Is(err, ErrTooManyPages):
		response.BadRequest(c, err.Error())
	case errors.As(err, &pageErr) && errors.Is(err, ErrDegradedPage):
		response.Degraded(c, pageErr.Error(), gin.H{"page": pageErr.Page, "raw_text": pageErr.Raw})
	default:
		grader.WriteGradeError(c, err)
	}
}
