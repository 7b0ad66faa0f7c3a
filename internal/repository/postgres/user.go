package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/internal/repository"
)

type userRepository struct {
	*BaseRepository
}

func NewUserRepository(base *BaseRepository) repository.UserRepository {
	return &userRepository{BaseRepository: base}
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var u model.User
	if err := r.db.GetContext(ctx, &u,
		`SELECT id, email, first_name, last_name, role FROM users WHERE id = $1`, id,
	); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", mapError(err))
	}
	return &u, nil
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}

	var users []*model.User
	if err := r.db.SelectContext(ctx, &users,
		`SELECT id, email, first_name, last_name, role FROM users WHERE id = ANY($1::uuid[])`,
		pq.Array(strs),
	); err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return users, nil
}
