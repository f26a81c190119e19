package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/visayasmed/access-management/internal/auth"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) CreateUser(ctx context.Context, u *auth.User) error {
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO users (id, email, password_hash, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.IsActive, u.CreatedAt, u.UpdatedAt,
	).Error
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *Repository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	var u auth.User
	row := r.db.WithContext(ctx).
		Raw(`SELECT id, email, password_hash, is_active, created_at, updated_at FROM users WHERE email = ?`, email).
		Row()
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, fmt.Errorf("user not found")
	}
	return &u, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*auth.User, error) {
	var u auth.User
	row := r.db.WithContext(ctx).
		Raw(`SELECT id, email, password_hash, is_active, created_at, updated_at FROM users WHERE id = ?`, id).
		Row()
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, fmt.Errorf("user not found")
	}
	return &u, nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]*auth.User, error) {
	rows, err := r.db.WithContext(ctx).
		Raw(`SELECT id, email, password_hash, is_active, created_at, updated_at FROM users ORDER BY created_at`).
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		var u auth.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}
