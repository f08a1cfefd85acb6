package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/target/quill/internal/errors"
	"github.com/target/quill/internal/ports"
)

// AccountRepo stores local credentials in the accounts table.
type AccountRepo struct {
	DB *sql.DB
}

var _ ports.AccountStore = (*AccountRepo)(nil)

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(db *sql.DB) *AccountRepo {
	return &AccountRepo{DB: db}
}

// CreateAccount inserts a; the email is stored trimmed and lower-cased.
func (r *AccountRepo) CreateAccount(ctx context.Context, a ports.Account) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash) VALUES ($1, $2, $3)`,
		a.ID, normalizeEmail(a.Email), a.PasswordHash,
	)
	if err != nil {
		return fmt.Errorf("create account: %w", apperrors.MapDBError(err))
	}
	return nil
}

// GetAccountByEmail looks an account up by email.
func (r *AccountRepo) GetAccountByEmail(ctx context.Context, email string) (ports.Account, error) {
	var a ports.Account
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, email, password_hash FROM accounts WHERE lower(email) = $1`,
		normalizeEmail(email),
	).Scan(&a.ID, &a.Email, &a.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Account{}, apperrors.NotFoundf("account not found")
	}
	if err != nil {
		return ports.Account{}, fmt.Errorf("get account: %w", apperrors.MapDBError(err))
	}
	return a, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
