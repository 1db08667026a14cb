package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hafizsameer11/superCrm/internal/access/models"
	"github.com/hafizsameer11/superCrm/internal/sentinel"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// PostgresAccessStore persists ledger entries in PostgreSQL.
// The unique constraint on (company_id, project_id) backs the one-entry-per-pair rule.
type PostgresAccessStore struct {
	db *sql.DB
}

// NewPostgresAccessStore constructs a PostgreSQL-backed ledger store.
func NewPostgresAccessStore(db *sql.DB) *PostgresAccessStore {
	return &PostgresAccessStore{db: db}
}

const accessColumns = `id, company_id, project_id, status, credentials, external_company_id,
	signup_snapshot, retry_count, last_error, rate_limit_per_minute, rate_limit_per_hour,
	circuit_breaker_state, circuit_breaker_failures, circuit_breaker_reset_at,
	approved_at, approved_by, last_sync_at, created_at, updated_at`

// Create inserts the entry, relying on the (company, project) unique constraint.
func (s *PostgresAccessStore) Create(ctx context.Context, a *models.Access) error {
	if err := a.Validate(); err != nil {
		return err
	}
	creds, err := marshalMap(a.Credentials)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	snapshot, err := marshalMap(a.SignupSnapshot)
	if err != nil {
		return fmt.Errorf("marshal signup snapshot: %w", err)
	}
	query := `
		INSERT INTO company_project_access (` + accessColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(a.ID), uuid.UUID(a.CompanyID), uuid.UUID(a.ProjectID),
		string(a.Status), creds, nullString(a.ExternalCompanyID),
		snapshot, a.RetryCount, nullString(a.LastError),
		a.RateLimitPerMinute, a.RateLimitPerHour,
		string(a.CircuitState), a.CircuitFailures, a.CircuitResetAt,
		a.ApprovedAt, nullUUID(uuid.UUID(a.ApprovedBy)), a.LastSyncAt,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("access for company and project already exists: %w", sentinel.ErrAlreadyUsed)
		}
		return fmt.Errorf("create access: %w", err)
	}
	return nil
}

// Update overwrites an existing entry.
func (s *PostgresAccessStore) Update(ctx context.Context, a *models.Access) error {
	if err := a.Validate(); err != nil {
		return err
	}
	creds, err := marshalMap(a.Credentials)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	query := `
		UPDATE company_project_access SET
			status = $2, credentials = $3, external_company_id = $4,
			retry_count = $5, last_error = $6,
			rate_limit_per_minute = $7, rate_limit_per_hour = $8,
			circuit_breaker_state = $9, circuit_breaker_failures = $10, circuit_breaker_reset_at = $11,
			approved_at = $12, approved_by = $13, last_sync_at = $14, updated_at = $15
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(a.ID), string(a.Status), creds, nullString(a.ExternalCompanyID),
		a.RetryCount, nullString(a.LastError),
		a.RateLimitPerMinute, a.RateLimitPerHour,
		string(a.CircuitState), a.CircuitFailures, a.CircuitResetAt,
		a.ApprovedAt, nullUUID(uuid.UUID(a.ApprovedBy)), a.LastSyncAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update access: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// FindByID retrieves a ledger entry by its UUID.
func (s *PostgresAccessStore) FindByID(ctx context.Context, accessID id.AccessID) (*models.Access, error) {
	query := `SELECT ` + accessColumns + ` FROM company_project_access WHERE id = $1`
	a, err := scanAccess(s.db.QueryRowContext(ctx, query, uuid.UUID(accessID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find access by id: %w", err)
	}
	return a, nil
}

// FindByCompanyAndProject retrieves the unique entry for a (company, project) pair.
func (s *PostgresAccessStore) FindByCompanyAndProject(ctx context.Context, companyID id.CompanyID, projectID id.ProjectID) (*models.Access, error) {
	query := `SELECT ` + accessColumns + ` FROM company_project_access WHERE company_id = $1 AND project_id = $2`
	a, err := scanAccess(s.db.QueryRowContext(ctx, query, uuid.UUID(companyID), uuid.UUID(projectID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find access by company and project: %w", err)
	}
	return a, nil
}

// ListByCompany returns all entries owned by one company.
func (s *PostgresAccessStore) ListByCompany(ctx context.Context, companyID id.CompanyID) ([]*models.Access, error) {
	query := `SELECT ` + accessColumns + ` FROM company_project_access WHERE company_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(companyID))
	if err != nil {
		return nil, fmt.Errorf("list access by company: %w", err)
	}
	defer rows.Close()
	return collectAccess(rows)
}

// ListRetryable returns partial_failed entries with retry budget remaining.
func (s *PostgresAccessStore) ListRetryable(ctx context.Context, maxRetries int) ([]*models.Access, error) {
	query := `SELECT ` + accessColumns + ` FROM company_project_access
		WHERE status = $1 AND retry_count < $2 ORDER BY updated_at`
	rows, err := s.db.QueryContext(ctx, query, string(models.AccessStatusPartialFailed), maxRetries)
	if err != nil {
		return nil, fmt.Errorf("list retryable access: %w", err)
	}
	defer rows.Close()
	return collectAccess(rows)
}

func collectAccess(rows *sql.Rows) ([]*models.Access, error) {
	var out []*models.Access
	for rows.Next() {
		a, err := scanAccess(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccess(row rowScanner) (*models.Access, error) {
	var (
		a                            models.Access
		accessID, companyID, projID  uuid.UUID
		status, circuitState         string
		creds, snapshot              []byte
		externalCompanyID, lastError sql.NullString
		circuitResetAt, approvedAt   sql.NullTime
		lastSyncAt                   sql.NullTime
		approvedBy                   uuid.NullUUID
	)
	err := row.Scan(
		&accessID, &companyID, &projID, &status, &creds, &externalCompanyID,
		&snapshot, &a.RetryCount, &lastError, &a.RateLimitPerMinute, &a.RateLimitPerHour,
		&circuitState, &a.CircuitFailures, &circuitResetAt,
		&approvedAt, &approvedBy, &lastSyncAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ID = id.AccessID(accessID)
	a.CompanyID = id.CompanyID(companyID)
	a.ProjectID = id.ProjectID(projID)
	a.Status = models.AccessStatus(status)
	a.CircuitState = models.CircuitState(circuitState)
	a.ExternalCompanyID = externalCompanyID.String
	a.LastError = lastError.String
	a.CircuitResetAt = timePtr(circuitResetAt)
	a.ApprovedAt = timePtr(approvedAt)
	a.LastSyncAt = timePtr(lastSyncAt)
	if approvedBy.Valid {
		a.ApprovedBy = id.UserID(approvedBy.UUID)
	}
	if err := unmarshalMap(creds, &a.Credentials); err != nil {
		return nil, fmt.Errorf("unmarshal credentials: %w", err)
	}
	if err := unmarshalMap(snapshot, &a.SignupSnapshot); err != nil {
		return nil, fmt.Errorf("unmarshal signup snapshot: %w", err)
	}
	return &a, nil
}

func marshalMap(m map[string]string) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalMap(b []byte, dst *map[string]string) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// isUniqueViolation reports whether the error is a Postgres unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
