package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hafizsameer11/superCrm/internal/sentinel"
	"github.com/hafizsameer11/superCrm/internal/signup/models"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// PostgresRequestStore persists signup requests in PostgreSQL. The requested
// project list lives in a JSONB column; it is written once at submission and
// only read afterwards.
type PostgresRequestStore struct {
	db *sql.DB
}

// NewPostgresRequestStore constructs a PostgreSQL-backed request store.
func NewPostgresRequestStore(db *sql.DB) *PostgresRequestStore {
	return &PostgresRequestStore{db: db}
}

const requestColumns = `id, company_name, vat_number, contact_name, contact_email,
	requested_projects, status, company_id, admin_user_id, reviewed_by, reviewed_at,
	reject_reason, api_calls_log, created_at, updated_at`

// Create inserts the request.
func (s *PostgresRequestStore) Create(ctx context.Context, r *models.SignupRequest) error {
	projects, err := marshalProjects(r.RequestedProjects)
	if err != nil {
		return err
	}
	callsLog, err := marshalCallsLog(r.APICallsLog)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO signup_requests (` + requestColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(r.ID), r.CompanyName, r.VATNumber, r.ContactName, r.ContactEmail,
		projects, string(r.Status), nilUUID(uuid.UUID(r.CompanyID)), nilUUID(uuid.UUID(r.AdminUserID)),
		nilUUID(uuid.UUID(r.ReviewedBy)), r.ReviewedAt, r.RejectReason, callsLog, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create signup request: %w", err)
	}
	return nil
}

// Update overwrites an existing request.
func (s *PostgresRequestStore) Update(ctx context.Context, r *models.SignupRequest) error {
	callsLog, err := marshalCallsLog(r.APICallsLog)
	if err != nil {
		return err
	}
	query := `
		UPDATE signup_requests SET status = $2, company_id = $3, admin_user_id = $4,
			reviewed_by = $5, reviewed_at = $6, reject_reason = $7, api_calls_log = $8,
			updated_at = $9
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(r.ID), string(r.Status), nilUUID(uuid.UUID(r.CompanyID)),
		nilUUID(uuid.UUID(r.AdminUserID)), nilUUID(uuid.UUID(r.ReviewedBy)),
		r.ReviewedAt, r.RejectReason, callsLog, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update signup request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// FindByID retrieves a request.
func (s *PostgresRequestStore) FindByID(ctx context.Context, requestID id.SignupRequestID) (*models.SignupRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM signup_requests WHERE id = $1`
	r, err := scanRequest(s.db.QueryRowContext(ctx, query, uuid.UUID(requestID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find signup request: %w", err)
	}
	return r, nil
}

// ListByStatus returns requests with the given status, oldest first.
func (s *PostgresRequestStore) ListByStatus(ctx context.Context, status models.Status) ([]*models.SignupRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM signup_requests WHERE status = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("list signup requests: %w", err)
	}
	defer rows.Close()

	var out []*models.SignupRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signup request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*models.SignupRequest, error) {
	var (
		r          models.SignupRequest
		rID        uuid.UUID
		projects   []byte
		status     string
		companyID  uuid.NullUUID
		adminID    uuid.NullUUID
		reviewedBy uuid.NullUUID
		reviewedAt sql.NullTime
		reason     sql.NullString
		callsLog   []byte
	)
	err := row.Scan(&rID, &r.CompanyName, &r.VATNumber, &r.ContactName, &r.ContactEmail,
		&projects, &status, &companyID, &adminID, &reviewedBy, &reviewedAt,
		&reason, &callsLog, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(callsLog) > 0 {
		if err := json.Unmarshal(callsLog, &r.APICallsLog); err != nil {
			return nil, fmt.Errorf("unmarshal api calls log: %w", err)
		}
	}
	r.ID = id.SignupRequestID(rID)
	r.Status = models.Status(status)
	if companyID.Valid {
		r.CompanyID = id.CompanyID(companyID.UUID)
	}
	if adminID.Valid {
		r.AdminUserID = id.UserID(adminID.UUID)
	}
	if reviewedBy.Valid {
		r.ReviewedBy = id.UserID(reviewedBy.UUID)
	}
	if reviewedAt.Valid {
		r.ReviewedAt = &reviewedAt.Time
	}
	r.RejectReason = reason.String
	if len(projects) > 0 {
		var raw []string
		if err := json.Unmarshal(projects, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal requested projects: %w", err)
		}
		for _, p := range raw {
			parsed, err := id.ParseProjectID(p)
			if err != nil {
				return nil, fmt.Errorf("parse requested project: %w", err)
			}
			r.RequestedProjects = append(r.RequestedProjects, parsed)
		}
	}
	return &r, nil
}

func marshalProjects(projects []id.ProjectID) ([]byte, error) {
	raw := make([]string, len(projects))
	for i, p := range projects {
		raw[i] = p.String()
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal requested projects: %w", err)
	}
	return b, nil
}

func marshalCallsLog(calls []models.ProjectCall) ([]byte, error) {
	if calls == nil {
		calls = []models.ProjectCall{}
	}
	b, err := json.Marshal(calls)
	if err != nil {
		return nil, fmt.Errorf("marshal api calls log: %w", err)
	}
	return b, nil
}

func nilUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}
