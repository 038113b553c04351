package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/tdxcore/leadqualifier/internal/errs"
	"github.com/tdxcore/leadqualifier/pkg/models"
)

type pgUserStore struct {
	db *sql.DB
}

func (s *pgUserStore) Get(ctx context.Context, id string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, phone, email, full_name, company, created_at, updated_at
		 FROM users WHERE id = $1`, id))
}

func (s *pgUserStore) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, errs.NotFound("user: phone is empty")
	}
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, phone, email, full_name, company, created_at, updated_at
		 FROM users WHERE phone = $1`, phone))
}

func (s *pgUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, errs.NotFound("user: email is empty")
	}
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, phone, email, full_name, company, created_at, updated_at
		 FROM users WHERE email = $1`, email))
}

// Upsert inserts a new User or updates the existing one matched by phone or
// email, per spec.md §3's "User created on first contact (upsert by phone
// or email)" lifecycle rule.
func (s *pgUserStore) Upsert(ctx context.Context, user *models.User) (*models.User, error) {
	if user == nil || !user.HasIdentity() {
		return nil, errs.Validation("user: phone or email is required")
	}

	existing, err := s.findExisting(ctx, user.Phone, user.Email)
	if err != nil && !errs.Is(err, errs.KindNotFound) {
		return nil, err
	}

	if existing == nil {
		if user.ID == "" {
			user.ID = uuid.NewString()
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO users (id, phone, email, full_name, company, created_at, updated_at)
			 VALUES ($1,$2,$3,$4,$5, now(), now())`,
			user.ID, nullable(user.Phone), nullable(user.Email), user.FullName, nullable(user.Company))
		if err != nil {
			if isUniqueViolation(err) {
				return nil, errs.ConstraintViolation("user: phone or email already claimed by another user")
			}
			return nil, errs.Internal("user: insert", err)
		}
		return s.Get(ctx, user.ID)
	}

	if user.FullName != "" {
		existing.FullName = user.FullName
	}
	if user.Company != "" {
		existing.Company = user.Company
	}
	if user.Phone != "" {
		existing.Phone = user.Phone
	}
	if user.Email != "" {
		existing.Email = user.Email
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET phone=$2, email=$3, full_name=$4, company=$5, updated_at=now() WHERE id=$1`,
		existing.ID, nullable(existing.Phone), nullable(existing.Email), existing.FullName, nullable(existing.Company))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errs.ConstraintViolation("user: phone or email already claimed by another user")
		}
		return nil, errs.Internal("user: update", err)
	}
	return s.Get(ctx, existing.ID)
}

func (s *pgUserStore) findExisting(ctx context.Context, phone, email string) (*models.User, error) {
	if phone != "" {
		if u, err := s.GetByPhone(ctx, phone); err == nil {
			return u, nil
		}
	}
	if email != "" {
		if u, err := s.GetByEmail(ctx, email); err == nil {
			return u, nil
		}
	}
	return nil, errs.NotFound("user: no match")
}

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var phone, email, company sql.NullString
	if err := row.Scan(&u.ID, &phone, &email, &u.FullName, &company, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.NotFound("user not found")
		}
		return nil, errs.Internal("user: scan", err)
	}
	u.Phone = phone.String
	u.Email = email.String
	u.Company = company.String
	return &u, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique")
}
