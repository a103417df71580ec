package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Dispatch statuses.
const (
	StatusDispatching = "DISPATCHING"
	StatusDispatched  = "DISPATCHED"
	StatusFailed      = "FAILED"
)

// ErrNotFound is returned when no record has the requested dispatch id.
var ErrNotFound = errors.New("dispatch record not found")

// DispatchRecord is the orchestrator's journal entry for one dispatch. It never
// holds the password, its ciphertext or the script text.
type DispatchRecord struct {
	ID           uint       `json:"-" gorm:"primarykey"`
	DispatchID   string     `json:"dispatch_id" gorm:"uniqueIndex;size:36"`
	TaskName     string     `json:"task_name" gorm:"index"`
	AgentURL     string     `json:"agent_url"`
	Username     string     `json:"username"`
	ScriptSHA256 string     `json:"script_sha256" gorm:"column:script_sha256;size:64"`
	Status       string     `json:"status" gorm:"index"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ErrorStage   string     `json:"error_stage,omitempty"`
	Error        string     `json:"error,omitempty"`
	AgentStatus  int        `json:"agent_status,omitempty"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Failure describes why a dispatch failed.
type Failure struct {
	Kind        string
	Stage       string
	Message     string
	AgentStatus int
}

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	TaskName string
	Status   string
	Limit    int
}

const defaultListLimit = 100

// Store reads and writes DispatchRecords.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// Migrate creates or updates the journal table.
func (s *Store) Migrate() error {
	return s.DB.AutoMigrate(&DispatchRecord{})
}

func (s *Store) Create(ctx context.Context, rec *DispatchRecord) error {
	if rec.Status == "" {
		rec.Status = StatusDispatching
	}
	if err := s.DB.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create dispatch record %s: %w", rec.DispatchID, err)
	}
	return nil
}

func (s *Store) MarkDispatched(ctx context.Context, dispatchID string, at time.Time, agentStatus int) error {
	return s.update(ctx, dispatchID, map[string]interface{}{
		"status":        StatusDispatched,
		"dispatched_at": at.UTC(),
		"agent_status":  agentStatus,
	})
}

func (s *Store) MarkFailed(ctx context.Context, dispatchID string, f Failure) error {
	return s.update(ctx, dispatchID, map[string]interface{}{
		"status":       StatusFailed,
		"error_kind":   f.Kind,
		"error_stage":  f.Stage,
		"error":        f.Message,
		"agent_status": f.AgentStatus,
	})
}

func (s *Store) update(ctx context.Context, dispatchID string, fields map[string]interface{}) error {
	res := s.DB.WithContext(ctx).Model(&DispatchRecord{}).Where("dispatch_id = ?", dispatchID).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update dispatch record %s: %w", dispatchID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, dispatchID)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, dispatchID string) (*DispatchRecord, error) {
	var rec DispatchRecord
	err := s.DB.WithContext(ctx).Where("dispatch_id = ?", dispatchID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dispatchID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dispatch record %s: %w", dispatchID, err)
	}
	return &rec, nil
}

// List returns the newest records first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]DispatchRecord, error) {
	q := s.DB.WithContext(ctx).Model(&DispatchRecord{})
	if f.TaskName != "" {
		q = q.Where("task_name = ?", f.TaskName)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	var recs []DispatchRecord
	if err := q.Order("id desc").Limit(limit).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list dispatch records: %w", err)
	}
	return recs, nil
}
