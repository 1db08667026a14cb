package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hafizsameer11/superCrm/internal/access/models"
	"github.com/hafizsameer11/superCrm/internal/sentinel"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// PostgresProjectUserStore persists external account mappings in PostgreSQL.
type PostgresProjectUserStore struct {
	db *sql.DB
}

// NewPostgresProjectUserStore constructs a PostgreSQL-backed mapping store.
func NewPostgresProjectUserStore(db *sql.DB) *PostgresProjectUserStore {
	return &PostgresProjectUserStore{db: db}
}

const projectUserColumns = `id, company_project_access_id, user_id, external_user_id,
	external_username, external_role, status, last_sso_at, revoked_at, revoked_by, created_at`

// CreateIfAbsent inserts the mapping unless one already exists for the same
// (access, user) pair or the same external account, in which case the existing
// mapping is returned. The insert races through the unique indexes.
func (s *PostgresProjectUserStore) CreateIfAbsent(ctx context.Context, pu *models.ProjectUser) (*models.ProjectUser, error) {
	query := `
		INSERT INTO company_project_users (` + projectUserColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		pu.ID, uuid.UUID(pu.AccessID), uuid.UUID(pu.UserID),
		nullString(pu.ExternalUserID), nullString(pu.ExternalUsername), nullString(pu.ExternalRole),
		string(pu.Status), pu.LastSSOAt, pu.RevokedAt, nullUUID(uuid.UUID(pu.RevokedBy)), pu.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create project user: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		cp := *pu
		return &cp, nil
	}
	existing, err := s.FindByAccessAndUser(ctx, pu.AccessID, pu.UserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) || pu.ExternalUserID == "" {
		return nil, err
	}
	return s.findByAccessAndExternalUser(ctx, pu.AccessID, pu.ExternalUserID)
}

// Update overwrites an existing mapping.
func (s *PostgresProjectUserStore) Update(ctx context.Context, pu *models.ProjectUser) error {
	query := `
		UPDATE company_project_users SET
			external_user_id = $2, external_username = $3, external_role = $4,
			status = $5, last_sso_at = $6, revoked_at = $7, revoked_by = $8
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		pu.ID, nullString(pu.ExternalUserID), nullString(pu.ExternalUsername), nullString(pu.ExternalRole),
		string(pu.Status), pu.LastSSOAt, pu.RevokedAt, nullUUID(uuid.UUID(pu.RevokedBy)),
	)
	if err != nil {
		return fmt.Errorf("update project user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// FindByAccessAndUser retrieves the mapping for one user under one ledger entry.
func (s *PostgresProjectUserStore) FindByAccessAndUser(ctx context.Context, accessID id.AccessID, userID id.UserID) (*models.ProjectUser, error) {
	query := `SELECT ` + projectUserColumns + ` FROM company_project_users
		WHERE company_project_access_id = $1 AND user_id = $2`
	pu, err := scanProjectUser(s.db.QueryRowContext(ctx, query, uuid.UUID(accessID), uuid.UUID(userID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find project user: %w", err)
	}
	return pu, nil
}

func (s *PostgresProjectUserStore) findByAccessAndExternalUser(ctx context.Context, accessID id.AccessID, externalUserID string) (*models.ProjectUser, error) {
	query := `SELECT ` + projectUserColumns + ` FROM company_project_users
		WHERE company_project_access_id = $1 AND external_user_id = $2`
	pu, err := scanProjectUser(s.db.QueryRowContext(ctx, query, uuid.UUID(accessID), externalUserID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find project user by external id: %w", err)
	}
	return pu, nil
}

// ListByAccess returns all mappings under one ledger entry.
func (s *PostgresProjectUserStore) ListByAccess(ctx context.Context, accessID id.AccessID) ([]*models.ProjectUser, error) {
	query := `SELECT ` + projectUserColumns + ` FROM company_project_users
		WHERE company_project_access_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(accessID))
	if err != nil {
		return nil, fmt.Errorf("list project users: %w", err)
	}
	defer rows.Close()

	var out []*models.ProjectUser
	for rows.Next() {
		pu, err := scanProjectUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project user: %w", err)
		}
		out = append(out, pu)
	}
	return out, rows.Err()
}

func scanProjectUser(row rowScanner) (*models.ProjectUser, error) {
	var (
		pu                    models.ProjectUser
		accessID, userID      uuid.UUID
		extID, extName, role  sql.NullString
		status                string
		lastSSO, revokedAt    sql.NullTime
		revokedBy             uuid.NullUUID
		createdAt             time.Time
	)
	err := row.Scan(
		&pu.ID, &accessID, &userID, &extID, &extName, &role,
		&status, &lastSSO, &revokedAt, &revokedBy, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	pu.AccessID = id.AccessID(accessID)
	pu.UserID = id.UserID(userID)
	pu.ExternalUserID = extID.String
	pu.ExternalUsername = extName.String
	pu.ExternalRole = role.String
	pu.Status = models.ProjectUserStatus(status)
	pu.LastSSOAt = timePtr(lastSSO)
	pu.RevokedAt = timePtr(revokedAt)
	if revokedBy.Valid {
		pu.RevokedBy = id.UserID(revokedBy.UUID)
	}
	pu.CreatedAt = createdAt
	return &pu, nil
}
