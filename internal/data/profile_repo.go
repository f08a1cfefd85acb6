package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	domainauth "github.com/target/quill/internal/domain/auth"
	apperrors "github.com/target/quill/internal/errors"
	"github.com/target/quill/internal/ports"
)

// ProfileRepo stores display names and roles in user_profiles.
type ProfileRepo struct {
	DB *sql.DB
}

var _ ports.ProfileStore = (*ProfileRepo)(nil)

// NewProfileRepo creates a new ProfileRepo.
func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{DB: db}
}

// GetProfile returns the profile for userID.
func (r *ProfileRepo) GetProfile(ctx context.Context, userID string) (domainauth.Profile, error) {
	var (
		p    domainauth.Profile
		role string
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, name, role FROM user_profiles WHERE id = $1`, userID,
	).Scan(&p.UserID, &p.Name, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return domainauth.Profile{}, apperrors.NotFoundf("profile %q not found", userID)
	}
	if err != nil {
		return domainauth.Profile{}, fmt.Errorf("get profile: %w", apperrors.MapDBError(err))
	}
	p.Role = domainauth.ParseRole(role)
	return p, nil
}

// CreateProfile inserts a profile. An existing profile for the same ID is a conflict.
func (r *ProfileRepo) CreateProfile(ctx context.Context, p domainauth.Profile) error {
	if strings.TrimSpace(p.UserID) == "" {
		return apperrors.Validation("profile id is required")
	}
	role := p.Role
	if !role.Valid() {
		role = domainauth.RoleEditor
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO user_profiles (id, name, role) VALUES ($1, $2, $3)`,
		p.UserID, strings.TrimSpace(p.Name), string(role),
	)
	if err != nil {
		return fmt.Errorf("create profile: %w", apperrors.MapDBError(err))
	}
	return nil
}
