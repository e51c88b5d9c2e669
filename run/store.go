package run

import (
	"context"

	"github.com/google/uuid"
)

type Store interface {
	Create(ctx context.Context, run *Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error
	List(ctx context.Context, limit, offset int) ([]*Run, error)
	Count(ctx context.Context) (int, error)
	Start(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, completion Completion) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error
	AddSessions(ctx context.Context, runID uuid.UUID, records []*SessionRecord) error
	ListSessions(ctx context.Context, runID uuid.UUID) ([]*SessionRecord, error)
}

type UpdateSetter func(*Run) error
