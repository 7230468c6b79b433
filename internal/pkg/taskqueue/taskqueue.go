package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	redisc "github.com/papergrade/core/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// ErrTaskNotFound is returned when a task id is unknown or expired.
var ErrTaskNotFound = errors.New("task not found")

// Progress counts finished units of work, e.g. graded pages.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Task is a unit of background work stored in Redis.
type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Status    TaskStatus      `json:"status"`
	Progress  Progress        `json:"progress"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorData json.RawMessage `json:"error_data,omitempty"`
	DedupKey  string          `json:"dedup_key,omitempty"`
	OwnerID   string          `json:"owner_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Finished reports whether the task reached a terminal state.
func (t *Task) Finished() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

const (
	keyPrefix   = "papergrade:task:"
	keyIndex    = "papergrade:tasks:index"  // sorted set: score=created_at, member=task_id
	keyDedupSet = "papergrade:tasks:dedup:" // hash: dedup_key -> task_id
	taskTTL     = 7 * 24 * time.Hour
)

// Service manages the Redis-backed task queue.
type Service struct {
	rc  *redisc.Client
	now func() time.Time
}

func NewService(rc *redisc.Client) *Service {
	return &Service{rc: rc, now: time.Now}
}

func (s *Service) taskKey(id string) string { return keyPrefix + id }

// Enqueue creates a new pending task. When dedupKey matches a task that is
// still in flight, that task is returned instead.
func (s *Service) Enqueue(ctx context.Context, taskType string, payload interface{}, dedupKey, ownerID string, total int) (*Task, bool, error) {
	if dedupKey != "" {
		existing, err := s.rc.Raw().HGet(ctx, keyDedupSet+taskType, dedupKey).Result()
		if err == nil && existing != "" {
			task, err := s.GetByID(ctx, existing)
			if err == nil {
				return task, false, nil
			}
		}
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, false, err
	}

	now := s.now()
	task := &Task{
		ID:        uuid.New().String(),
		Type:      taskType,
		Payload:   payloadBytes,
		Status:    TaskPending,
		Progress:  Progress{Total: total},
		DedupKey:  dedupKey,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(task)
	if err != nil {
		return nil, false, err
	}

	pipe := s.rc.Raw().TxPipeline()
	pipe.Set(ctx, s.taskKey(task.ID), data, taskTTL)
	pipe.ZAdd(ctx, keyIndex, redis.Z{
		Score:  float64(task.CreatedAt.UnixMilli()),
		Member: task.ID,
	})
	if dedupKey != "" {
		pipe.HSet(ctx, keyDedupSet+taskType, dedupKey, task.ID)
		pipe.Expire(ctx, keyDedupSet+taskType, taskTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, err
	}
	return task, true, nil
}

// GetByID retrieves a task by its ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Task, error) {
	data, err := s.rc.Raw().Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *Service) save(ctx context.Context, task *Task) error {
	task.UpdatedAt = s.now()
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return s.rc.Raw().Set(ctx, s.taskKey(task.ID), data, taskTTL).Err()
}

// UpdateStatus sets a task's status and optional result/error.
func (s *Service) UpdateStatus(ctx context.Context, id string, status TaskStatus, result interface{}, errMsg string) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	task.Status = status
	task.Error = errMsg
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return err
		}
		if status == TaskFailed {
			task.ErrorData = raw
		} else {
			task.Result = raw
		}
	}

	if task.Finished() && task.DedupKey != "" {
		s.rc.Raw().HDel(ctx, keyDedupSet+task.Type, task.DedupKey)
	}
	return s.save(ctx, task)
}

// UpdateProgress records how many units of the task are done.
func (s *Service) UpdateProgress(ctx context.Context, id string, done int) error {
	task, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	task.Progress.Done = done
	return s.save(ctx, task)
}

// DeleteFinished removes completed and failed tasks created before the cutoff.
func (s *Service) DeleteFinished(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.rc.Raw().ZRangeByScore(ctx, keyIndex, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	removed := 0
	pipe := s.rc.Raw().TxPipeline()
	for _, id := range ids {
		task, err := s.GetByID(ctx, id)
		if errors.Is(err, ErrTaskNotFound) {
			pipe.ZRem(ctx, keyIndex, id)
			continue
		}
		if err != nil || !task.Finished() {
			continue
		}
		pipe.Del(ctx, s.taskKey(id))
		pipe.ZRem(ctx, keyIndex, id)
		removed++
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	return removed, nil
}
