package medication

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("medication not found")
	ErrDuplicate = errors.New("medication name already exists")
)

type Repository interface {
	Create(ctx context.Context, m *Medication) error
	Update(ctx context.Context, m *Medication) error
	List(ctx context.Context) ([]*Medication, error)
}
