package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hafizsameer11/superCrm/internal/integration/models"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// PostgresCallLogStore persists call log rows in PostgreSQL.
type PostgresCallLogStore struct {
	db *sql.DB
}

// NewPostgresCallLogStore constructs a PostgreSQL-backed call log store.
func NewPostgresCallLogStore(db *sql.DB) *PostgresCallLogStore {
	return &PostgresCallLogStore{db: db}
}

// Append adds one row. Rows are never updated or deleted.
func (s *PostgresCallLogStore) Append(ctx context.Context, l *models.CallLog) error {
	query := `
		INSERT INTO api_integration_logs
			(id, company_project_access_id, project_id, operation, method, endpoint,
			 status_code, outcome, error, duration_ms, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`
	var errMsg sql.NullString
	if l.Error != "" {
		errMsg = sql.NullString{String: l.Error, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		l.ID, uuid.UUID(l.AccessID), uuid.UUID(l.ProjectID), l.Operation, l.Method, l.Endpoint,
		l.Status, string(l.Outcome), errMsg, l.Duration.Milliseconds(), l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append call log: %w", err)
	}
	return nil
}

// ListByAccess returns the most recent rows for one ledger entry, oldest first.
func (s *PostgresCallLogStore) ListByAccess(ctx context.Context, accessID id.AccessID, limit int) ([]*models.CallLog, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, company_project_access_id, project_id, operation, method, endpoint,
		       status_code, outcome, error, duration_ms, created_at
		FROM (
			SELECT * FROM api_integration_logs
			WHERE company_project_access_id = $1
			ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(accessID), limit)
	if err != nil {
		return nil, fmt.Errorf("list call logs: %w", err)
	}
	defer rows.Close()

	var out []*models.CallLog
	for rows.Next() {
		var (
			l          models.CallLog
			aID, pID   uuid.UUID
			outcome    string
			errMsg     sql.NullString
			durationMs int64
		)
		if err := rows.Scan(&l.ID, &aID, &pID, &l.Operation, &l.Method, &l.Endpoint,
			&l.Status, &outcome, &errMsg, &durationMs, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan call log: %w", err)
		}
		l.AccessID = id.AccessID(aID)
		l.ProjectID = id.ProjectID(pID)
		l.Outcome = models.CallOutcome(outcome)
		l.Error = errMsg.String
		l.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, &l)
	}
	return out, rows.Err()
}
