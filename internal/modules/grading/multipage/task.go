package multipage

import (
	"context"
	"errors"
	"strings"

	"github.com/papergrade/core/internal/pkg/contenthash"
	"github.com/papergrade/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

const TaskType = "grading.pages"

type taskPayload struct {
	PaperID   string   `json:"paper_id"`
	PagePaths []string `json:"page_paths"`
	UserID    string   `json:"user_id,omitempty"`
}

// TaskResult is stored on a completed task.
type TaskResult struct {
	GradingID  string `json:"grading_id"`
	TotalScore string `json:"total_score"`
}

// TaskFailure is stored on a failed task.
type TaskFailure struct {
	Page    int    `json:"page,omitempty"`
	RawText string `json:"raw_text,omitempty"`
}

// Enqueue hands the temp page files to a background worker, which deletes
// them when it is done. Resubmitting the same pages for the same paper and
// user while that grading is still running returns the running task, and
// the resubmitted files are deleted right away.
func (s *Service) Enqueue(ctx context.Context, paperID string, pagePaths []string, userID string) (*taskqueue.Task, error) {
	if s.tasks == nil {
		return nil, errors.New("task queue is not configured")
	}
	if err := s.CheckPageCount(len(pagePaths)); err != nil {
		return nil, err
	}
	dedupKey, err := pagesDedupKey(paperID, userID, pagePaths)
	if err != nil {
		return nil, err
	}
	payload := taskPayload{PaperID: paperID, PagePaths: pagePaths, UserID: userID}
	task, created, err := s.tasks.Enqueue(ctx, TaskType, payload, dedupKey, userID, len(pagePaths))
	if err != nil {
		return nil, err
	}
	if !created {
		s.logger.Debug("reusing in-flight grading task", zap.String("task_id", task.ID))
		s.temp.Remove(pagePaths...)
		return task, nil
	}

	s.wg.Add(1)
	go s.execute(context.Background(), task.ID, payload)
	return task, nil
}

func (s *Service) execute(ctx context.Context, taskID string, payload taskPayload) {
	defer s.wg.Done()
	defer s.temp.Remove(payload.PagePaths...)
	log := s.logger.With(zap.String("task_id", taskID))

	if err := s.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskRunning, nil, ""); err != nil {
		log.Error("task status update failed", zap.Error(err))
		return
	}

	fail := func(err error, detail interface{}) {
		log.Warn("multi-page grading failed", zap.Error(err))
		if uerr := s.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskFailed, detail, err.Error()); uerr != nil {
			log.Error("task status update failed", zap.Error(uerr))
		}
	}

	qp, err := s.papers.Get(ctx, payload.PaperID)
	if err != nil {
		fail(err, nil)
		return
	}

	var userID *string
	if payload.UserID != "" {
		userID = &payload.UserID
	}
	g, err := s.GradeFiles(ctx, qp, payload.PagePaths, userID, func(done int) {
		if perr := s.tasks.UpdateProgress(ctx, taskID, done); perr != nil {
			log.Warn("task progress update failed", zap.Error(perr))
		}
	})
	if err != nil {
		var pageErr *PageError
		if errors.As(err, &pageErr) {
			fail(err, TaskFailure{Page: pageErr.Page, RawText: pageErr.Raw})
		} else {
			fail(err, nil)
		}
		return
	}

	if err := s.tasks.UpdateStatus(ctx, taskID, taskqueue.TaskCompleted, TaskResult{GradingID: g.ID, TotalScore: g.TotalScore}, ""); err != nil {
		log.Error("task status update failed", zap.Error(err))
	}
}

// pagesDedupKey fingerprints a submission by paper, user and page bytes in
// page order.
func pagesDedupKey(paperID, userID string, pagePaths []string) (string, error) {
	parts := make([]string, 0, len(pagePaths)+2)
	parts = append(parts, paperID, userID)
	for _, p := range pagePaths {
		sum, err := contenthash.HashFile(p)
		if err != nil {
			return "", err
		}
		parts = append(parts, sum)
	}
	return contenthash.Hash([]byte(strings.Join(parts, "|"))), nil
}
