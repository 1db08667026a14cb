package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hafizsameer11/superCrm/internal/company/models"
	"github.com/hafizsameer11/superCrm/internal/sentinel"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// PostgresCompanyStore persists companies in PostgreSQL.
type PostgresCompanyStore struct {
	db *sql.DB
}

// NewPostgresCompanyStore constructs a PostgreSQL-backed company store.
func NewPostgresCompanyStore(db *sql.DB) *PostgresCompanyStore {
	return &PostgresCompanyStore{db: db}
}

// Create inserts the company. The partial unique index on vat_number enforces
// uniqueness only for non-empty values.
func (s *PostgresCompanyStore) Create(ctx context.Context, c *models.Company) error {
	query := `
		INSERT INTO companies (id, name, vat_number, contact_email, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`
	var vat sql.NullString
	if c.VATNumber != "" {
		vat = sql.NullString{String: c.VATNumber, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(c.ID), c.Name, vat, c.ContactEmail, string(c.Status), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUnique(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("create company: %w", err)
	}
	return nil
}

// Update overwrites an existing company.
func (s *PostgresCompanyStore) Update(ctx context.Context, c *models.Company) error {
	query := `
		UPDATE companies SET name = $2, vat_number = $3, contact_email = $4,
			status = $5, updated_at = $6
		WHERE id = $1
	`
	var vat sql.NullString
	if c.VATNumber != "" {
		vat = sql.NullString{String: c.VATNumber, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(c.ID), c.Name, vat, c.ContactEmail, string(c.Status), c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update company: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// FindByID retrieves a company.
func (s *PostgresCompanyStore) FindByID(ctx context.Context, companyID id.CompanyID) (*models.Company, error) {
	query := `SELECT id, name, vat_number, contact_email, status, created_at, updated_at
		FROM companies WHERE id = $1`
	var (
		c   models.Company
		cID uuid.UUID
		vat sql.NullString
		st  string
	)
	err := s.db.QueryRowContext(ctx, query, uuid.UUID(companyID)).
		Scan(&cID, &c.Name, &vat, &c.ContactEmail, &st, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find company: %w", err)
	}
	c.ID = id.CompanyID(cID)
	c.VATNumber = vat.String
	c.Status = models.CompanyStatus(st)
	return &c, nil
}

// PostgresUserStore persists company users in PostgreSQL.
type PostgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore constructs a PostgreSQL-backed user store.
func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

// Create inserts the user. Emails are unique across the platform.
func (s *PostgresUserStore) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, company_id, name, email, role, status, password_hash, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(u.ID), uuid.UUID(u.CompanyID), u.Name, u.Email,
		string(u.Role), string(u.Status), u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUnique(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update overwrites an existing user.
func (s *PostgresUserStore) Update(ctx context.Context, u *models.User) error {
	query := `
		UPDATE users SET name = $2, email = $3, role = $4, status = $5,
			password_hash = $6, updated_at = $7
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(u.ID), u.Name, u.Email, string(u.Role), string(u.Status),
		u.PasswordHash, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// FindByID retrieves a user.
func (s *PostgresUserStore) FindByID(ctx context.Context, userID id.UserID) (*models.User, error) {
	query := `SELECT id, company_id, name, email, role, status, password_hash, created_at, updated_at
		FROM users WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(userID))
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// ListByCompany returns all users of one company.
func (s *PostgresUserStore) ListByCompany(ctx context.Context, companyID id.CompanyID) ([]*models.User, error) {
	query := `SELECT id, company_id, name, email, role, status, password_hash, created_at, updated_at
		FROM users WHERE company_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(companyID))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	var (
		u        models.User
		uID, cID uuid.UUID
		role, st string
	)
	err := row.Scan(&uID, &cID, &u.Name, &u.Email, &role, &st, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.ID = id.UserID(uID)
	u.CompanyID = id.CompanyID(cID)
	u.Role = models.UserRole(role)
	u.Status = models.UserStatus(st)
	return &u, nil
}

func isUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
