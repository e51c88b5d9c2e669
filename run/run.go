package run

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hairizuanbinnoorazman/rateloop/session"
)

var (
	ErrRunNotFound       = errors.New("run not found")
	ErrInvalidTargetURL  = errors.New("target_url is required")
	ErrInvalidTrigger    = errors.New("invalid run trigger")
	ErrInvalidStatus     = errors.New("invalid run status")
	ErrRunAlreadyStarted = errors.New("run already started")
	ErrRunNotRunning     = errors.New("run is not running")
	ErrInvalidRunID      = errors.New("run_id is required")
	ErrInvalidSession    = errors.New("session number must be positive")
	ErrInvalidUsername   = errors.New("username is required")
	ErrInvalidCount      = errors.New("session counts must not be negative")
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsFinal checks if the status can no longer change.
func (s Status) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Trigger records what started a run.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "schedule"
)

func (t Trigger) IsValid() bool {
	switch t {
	case TriggerManual, TriggerSchedule:
		return true
	}
	return false
}

// JSONMap is a custom type for JSON columns.
type JSONMap map[string]interface{}

func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return json.Marshal(map[string]interface{}{})
	}
	return json.Marshal(j)
}

func (j *JSONMap) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*j = make(JSONMap)
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("failed to scan JSONMap: unsupported type")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	*j = m
	return nil
}

// Run is one execution of the orchestrator.
type Run struct {
	ID           uuid.UUID  `json:"id" gorm:"type:char(36);primaryKey"`
	Status       Status     `json:"status" gorm:"type:varchar(20);not null;default:'pending';index:idx_runs_status"`
	Trigger      Trigger    `json:"trigger" gorm:"type:varchar(20);not null;default:'manual'"`
	TargetURL    string     `json:"target_url" gorm:"type:varchar(2048);not null"`
	SessionCount int        `json:"session_count" gorm:"not null;default:0"`
	SuccessCount int        `json:"success_count" gorm:"not null;default:0"`
	FailCount    int        `json:"fail_count" gorm:"not null;default:0"`
	SummaryPath  string     `json:"summary_path" gorm:"type:varchar(1024)"`
	LogPath      string     `json:"log_path" gorm:"type:varchar(1024)"`
	Error        string     `json:"error,omitempty" gorm:"type:text"`
	Metadata     JSONMap    `json:"metadata" gorm:"type:json"`
	StartedAt    *time.Time `json:"started_at,omitempty" gorm:"index:idx_runs_started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMs   *int64     `json:"duration_ms,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r *Run) Validate() error {
	if r.TargetURL == "" {
		return ErrInvalidTargetURL
	}
	if r.Trigger == "" {
		r.Trigger = TriggerManual
	}
	if !r.Trigger.IsValid() {
		return ErrInvalidTrigger
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	if !r.Status.IsValid() {
		return ErrInvalidStatus
	}
	return nil
}

// Start marks the run as running.
func (r *Run) Start() error {
	if r.Status != StatusPending {
		return ErrRunAlreadyStarted
	}
	now := time.Now()
	r.Status = StatusRunning
	r.StartedAt = &now
	return nil
}

// Completion carries the aggregate of a finished run.
type Completion struct {
	SuccessCount int
	FailCount    int
	SummaryPath  string
}

// Complete marks the run as completed with its aggregate.
func (r *Run) Complete(c Completion) error {
	if r.Status != StatusRunning {
		return ErrRunNotRunning
	}
	r.finish(StatusCompleted)
	r.SuccessCount = c.SuccessCount
	r.FailCount = c.FailCount
	if c.SummaryPath != "" {
		r.SummaryPath = c.SummaryPath
	}
	return nil
}

// Fail marks the run as failed. A pending run can fail before it starts.
func (r *Run) Fail(reason string) error {
	if r.Status.IsFinal() {
		return ErrRunNotRunning
	}
	r.finish(StatusFailed)
	r.Error = reason
	return nil
}

func (r *Run) finish(status Status) {
	now := time.Now()
	r.Status = status
	r.CompletedAt = &now
	if r.StartedAt != nil {
		duration := now.Sub(*r.StartedAt).Milliseconds()
		r.DurationMs = &duration
	}
}

// SessionRecord is the persisted outcome of one session of a run.
type SessionRecord struct {
	ID            uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	RunID         uuid.UUID `json:"run_id" gorm:"type:char(36);not null;index:idx_run_sessions_run_id"`
	SessionNumber int       `json:"session_number" gorm:"not null"`
	Username      string    `json:"username" gorm:"type:varchar(255);not null"`
	Success       bool      `json:"success" gorm:"not null;default:false"`
	FinalState    string    `json:"final_state" gorm:"type:varchar(40);not null"`
	ReachedState  string    `json:"reached_state" gorm:"type:varchar(40);not null"`
	Clicks        int       `json:"clicks" gorm:"not null;default:0"`
	SignalFound   bool      `json:"signal_found" gorm:"not null;default:false"`
	Error         string    `json:"error,omitempty" gorm:"type:text"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName keeps session rows next to their runs.
func (SessionRecord) TableName() string {
	return "run_sessions"
}

func (s *SessionRecord) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (s *SessionRecord) Validate() error {
	if s.RunID == uuid.Nil {
		return ErrInvalidRunID
	}
	if s.SessionNumber <= 0 {
		return ErrInvalidSession
	}
	if s.Username == "" {
		return ErrInvalidUsername
	}
	return nil
}

// NewSessionRecord converts a session result into a row of run runID.
func NewSessionRecord(runID uuid.UUID, r session.Result) *SessionRecord {
	return &SessionRecord{
		RunID:         runID,
		SessionNumber: r.ID,
		Username:      r.Username,
		Success:       r.Success,
		FinalState:    string(r.State),
		ReachedState:  string(r.Reached),
		Clicks:        r.Clicks,
		SignalFound:   r.SignalFound,
		Error:         r.Error,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
	}
}
