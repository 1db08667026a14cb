package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hafizsameer11/superCrm/internal/sentinel"
	"github.com/hafizsameer11/superCrm/internal/sso/models"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// PostgresUsageStore persists usage records in PostgreSQL. The consume CAS is
// a conditional UPDATE, so concurrency control rides on the row lock.
type PostgresUsageStore struct {
	db *sql.DB
}

// NewPostgresUsageStore constructs a PostgreSQL-backed usage store.
func NewPostgresUsageStore(db *sql.DB) *PostgresUsageStore {
	return &PostgresUsageStore{db: db}
}

// Create inserts the usage record for a freshly minted token.
func (s *PostgresUsageStore) Create(ctx context.Context, u *models.TokenUsage) error {
	query := `
		INSERT INTO sso_token_usage
			(jti, company_project_access_id, project_id, user_id, status,
			 issued_at, expires_at, used_at, revoked_at, ip, user_agent, device)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`
	_, err := s.db.ExecContext(ctx, query,
		u.JTI, uuid.UUID(u.AccessID), uuid.UUID(u.ProjectID), uuid.UUID(u.UserID),
		string(u.Status), u.IssuedAt, u.ExpiresAt, u.UsedAt, u.RevokedAt,
		nullable(u.IP), nullable(u.UserAgent), nullable(u.Device),
	)
	if err != nil {
		return fmt.Errorf("create token usage: %w", err)
	}
	return nil
}

// FindByJTI retrieves the usage record for a token.
func (s *PostgresUsageStore) FindByJTI(ctx context.Context, jti uuid.UUID) (*models.TokenUsage, error) {
	query := `
		SELECT jti, company_project_access_id, project_id, user_id, status,
		       issued_at, expires_at, used_at, revoked_at, ip, user_agent, device
		FROM sso_token_usage WHERE jti = $1
	`
	var (
		u                    models.TokenUsage
		accessID, projectID  uuid.UUID
		userID               uuid.UUID
		status               string
		usedAt, revokedAt    sql.NullTime
		ip, userAgent, device sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, jti).Scan(
		&u.JTI, &accessID, &projectID, &userID, &status,
		&u.IssuedAt, &u.ExpiresAt, &usedAt, &revokedAt, &ip, &userAgent, &device,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find token usage: %w", err)
	}
	u.AccessID = id.AccessID(accessID)
	u.ProjectID = id.ProjectID(projectID)
	u.UserID = id.UserID(userID)
	u.Status = models.UsageStatus(status)
	if usedAt.Valid {
		u.UsedAt = &usedAt.Time
	}
	if revokedAt.Valid {
		u.RevokedAt = &revokedAt.Time
	}
	u.IP = ip.String
	u.UserAgent = userAgent.String
	u.Device = device.String
	return &u, nil
}

// ConsumeIssued atomically flips an issued record to used.
func (s *PostgresUsageStore) ConsumeIssued(ctx context.Context, jti uuid.UUID, usedAt time.Time) error {
	return s.transition(ctx, jti, string(models.UsageUsed), "used_at", usedAt)
}

// Revoke flips an issued record to revoked.
func (s *PostgresUsageStore) Revoke(ctx context.Context, jti uuid.UUID, revokedAt time.Time) error {
	return s.transition(ctx, jti, string(models.UsageRevoked), "revoked_at", revokedAt)
}

func (s *PostgresUsageStore) transition(ctx context.Context, jti uuid.UUID, to, tsColumn string, at time.Time) error {
	query := fmt.Sprintf(`
		UPDATE sso_token_usage SET status = $2, %s = $3
		WHERE jti = $1 AND status = 'issued'
	`, tsColumn)
	res, err := s.db.ExecContext(ctx, query, jti, to, at)
	if err != nil {
		return fmt.Errorf("transition token usage: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition token usage: %w", err)
	}
	if n == 1 {
		return nil
	}
	// Distinguish an unknown token from one already consumed or revoked.
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM sso_token_usage WHERE jti = $1)`, jti).Scan(&exists); err != nil {
		return fmt.Errorf("transition token usage: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
