package run

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hairizuanbinnoorazman/rateloop/logger"
)

// MySQLStore implements the Store interface using GORM. It is also used
// with SQLite for local runs and tests.
type MySQLStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewMySQLStore creates a new GORM-backed run store.
func NewMySQLStore(db *gorm.DB, log logger.Logger) *MySQLStore {
	return &MySQLStore{
		db:     db,
		logger: log,
	}
}

// Create creates a new run in the database.
func (s *MySQLStore) Create(ctx context.Context, r *Run) error {
	if err := r.Validate(); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		s.logger.Error(ctx, "failed to create run", map[string]interface{}{
			"error":      err.Error(),
			"target_url": r.TargetURL,
		})
		return err
	}

	s.logger.Info(ctx, "run created", map[string]interface{}{
		"run_id":   r.ID.String(),
		"sessions": r.SessionCount,
		"trigger":  string(r.Trigger),
	})

	return nil
}

// GetByID retrieves a run by its ID.
func (s *MySQLStore) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	var r Run
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&r).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		s.logger.Error(ctx, "failed to get run by ID", map[string]interface{}{
			"error":  err.Error(),
			"run_id": id.String(),
		})
		return nil, err
	}

	return &r, nil
}

// Update updates a run with the given setters.
func (s *MySQLStore) Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error {
	r, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for _, setter := range setters {
		if err := setter(r); err != nil {
			return err
		}
	}

	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		s.logger.Error(ctx, "failed to update run", map[string]interface{}{
			"error":  err.Error(),
			"run_id": id.String(),
		})
		return err
	}

	return nil
}

// List retrieves a page of runs, newest first.
func (s *MySQLStore) List(ctx context.Context, limit, offset int) ([]*Run, error) {
	var runs []*Run
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&runs).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list runs", map[string]interface{}{
			"error":  err.Error(),
			"limit":  limit,
			"offset": offset,
		})
		return nil, err
	}

	return runs, nil
}

// Count returns the total number of runs.
func (s *MySQLStore) Count(ctx context.Context) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Run{}).
		Count(&count).Error

	if err != nil {
		s.logger.Error(ctx, "failed to count runs", map[string]interface{}{
			"error": err.Error(),
		})
		return 0, err
	}

	return int(count), nil
}

// transition loads a run inside a transaction, applies fn and saves it.
func (s *MySQLStore) transition(ctx context.Context, id uuid.UUID, fn func(r *Run) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r Run
		if err := tx.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRunNotFound
			}
			return err
		}

		if err := fn(&r); err != nil {
			return err
		}

		return tx.WithContext(ctx).Save(&r).Error
	})
}

// Start marks a run as running.
func (s *MySQLStore) Start(ctx context.Context, id uuid.UUID) error {
	err := s.transition(ctx, id, func(r *Run) error { return r.Start() })
	if err != nil {
		if !errors.Is(err, ErrRunNotFound) && !errors.Is(err, ErrRunAlreadyStarted) {
			s.logger.Error(ctx, "failed to start run", map[string]interface{}{
				"error":  err.Error(),
				"run_id": id.String(),
			})
		}
		return err
	}

	s.logger.Info(ctx, "run started", map[string]interface{}{
		"run_id": id.String(),
	})

	return nil
}

// Complete marks a run as completed with its aggregate counts.
func (s *MySQLStore) Complete(ctx context.Context, id uuid.UUID, completion Completion) error {
	err := s.transition(ctx, id, func(r *Run) error { return r.Complete(completion) })
	if err != nil {
		if !errors.Is(err, ErrRunNotFound) && !errors.Is(err, ErrRunNotRunning) {
			s.logger.Error(ctx, "failed to complete run", map[string]interface{}{
				"error":  err.Error(),
				"run_id": id.String(),
			})
		}
		return err
	}

	s.logger.Info(ctx, "run completed", map[string]interface{}{
		"run_id":     id.String(),
		"successful": completion.SuccessCount,
		"failed":     completion.FailCount,
	})

	return nil
}

// Fail marks a run as failed.
func (s *MySQLStore) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	err := s.transition(ctx, id, func(r *Run) error { return r.Fail(reason) })
	if err != nil {
		if !errors.Is(err, ErrRunNotFound) && !errors.Is(err, ErrRunNotRunning) {
			s.logger.Error(ctx, "failed to mark run failed", map[string]interface{}{
				"error":  err.Error(),
				"run_id": id.String(),
			})
		}
		return err
	}

	s.logger.Warn(ctx, "run failed", map[string]interface{}{
		"run_id": id.String(),
		"reason": reason,
	})

	return nil
}

// AddSessions stores the session outcomes of a run.
func (s *MySQLStore) AddSessions(ctx context.Context, runID uuid.UUID, records []*SessionRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, rec := range records {
		rec.RunID = runID
		if err := rec.Validate(); err != nil {
			return err
		}
	}

	if err := s.db.WithContext(ctx).Create(&records).Error; err != nil {
		s.logger.Error(ctx, "failed to store run sessions", map[string]interface{}{
			"error":  err.Error(),
			"run_id": runID.String(),
			"count":  len(records),
		})
		return err
	}

	return nil
}

// ListSessions returns the sessions of a run ordered by session number.
func (s *MySQLStore) ListSessions(ctx context.Context, runID uuid.UUID) ([]*SessionRecord, error) {
	var records []*SessionRecord
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("session_number ASC").
		Find(&records).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list run sessions", map[string]interface{}{
			"error":  err.Error(),
			"run_id": runID.String(),
		})
		return nil, err
	}

	return records, nil
}
