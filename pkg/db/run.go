// Database models for model stream runs
package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
)

// Run statuses
const (
	RunStreaming = "streaming"
	RunCompleted = "completed"
	RunCancelled = "cancelled"
	RunError     = "error"
)

var ErrRunNotFound = errors.New("run not found")

// StreamRun records one model reply streamed into a thread.
type StreamRun struct {
	ID       string `json:"id" gorm:"primaryKey;size:36"`
	ThreadID string `json:"thread_id" gorm:"index;size:64;not null"`
	Provider string `json:"provider" gorm:"size:50"`
	Model    string `json:"model" gorm:"size:200"`

	Status       string      `json:"status" gorm:"size:20;default:'streaming'"`
	FinishReason string      `json:"finish_reason,omitempty" gorm:"size:20"`
	Segments     int         `json:"segments"`
	Error        string      `json:"error,omitempty" gorm:"type:text"`
	Usage        *TokenUsage `json:"usage,omitempty" gorm:"type:text"` // JSON

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func (*StreamRun) TableName() string {
	return "stream_runs"
}

// TokenUsage represents token usage statistics
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Value implements driver.Valuer for database storage
func (t *TokenUsage) Value() (driver.Value, error) {
	if t == nil || (t.TotalTokens == 0 && t.PromptTokens == 0 && t.CompletionTokens == 0) {
		return nil, nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner for database retrieval
func (t *TokenUsage) Scan(value any) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return nil
	}
}

// RunStore keeps the history of stream runs.
type RunStore struct {
	db *gorm.DB
}

func NewRunStore(db *gorm.DB) *RunStore {
	return &RunStore{db: db}
}

// Start records a run that just opened.
func (s *RunStore) Start(r *StreamRun) error {
	if r.Status == "" {
		r.Status = RunStreaming
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if err := s.db.Create(r).Error; err != nil {
		return pkgerrors.Wrap(err, "create run")
	}
	return nil
}

// Finish stores the outcome of a run.
func (s *RunStore) Finish(id, status, finishReason, errMsg string, segments int, usage *TokenUsage) error {
	now := time.Now()
	res := s.db.Model(&StreamRun{}).Where("id = ?", id).Updates(map[string]any{
		"status":        status,
		"finish_reason": finishReason,
		"error":         errMsg,
		"segments":      segments,
		"usage":         usage,
		"ended_at":      &now,
	})
	if res.Error != nil {
		return pkgerrors.Wrap(res.Error, "finish run")
	}
	if res.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *RunStore) Get(id string) (*StreamRun, error) {
	var r StreamRun
	if err := s.db.First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, pkgerrors.Wrap(err, "get run")
	}
	return &r, nil
}

// ListByThread returns the runs of a thread, newest first.
func (s *RunStore) ListByThread(threadID string, limit int) ([]StreamRun, error) {
	var runs []StreamRun
	q := s.db.Where("thread_id = ?", threadID).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "list runs")
	}
	return runs, nil
}
