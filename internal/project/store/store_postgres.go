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

	"github.com/hafizsameer11/superCrm/internal/project/models"
	"github.com/hafizsameer11/superCrm/internal/sentinel"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// PostgresProjectStore persists projects in PostgreSQL.
type PostgresProjectStore struct {
	db *sql.DB
}

// NewPostgresProjectStore constructs a PostgreSQL-backed project store.
func NewPostgresProjectStore(db *sql.DB) *PostgresProjectStore {
	return &PostgresProjectStore{db: db}
}

const projectColumns = `id, name, slug, description, integration_type, auth_type,
	base_url, sso_base_url, callback_url, endpoints, api_key_enc, api_secret_enc,
	sso_secret_enc, sso_token_lifetime_seconds, active, created_at, updated_at`

// Create inserts the project. Slugs are unique.
func (s *PostgresProjectStore) Create(ctx context.Context, p *models.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	endpoints, err := marshalEndpoints(p.Endpoints)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO projects (` + projectColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(p.ID), p.Name, p.Slug, p.Description, string(p.IntegrationType), p.AuthType,
		p.BaseURL, p.SSOBaseURL, p.CallbackURL, endpoints, p.APIKeyEnc, p.APISecretEnc,
		p.SSOSecretEnc, int64(p.TokenLifetime.Seconds()), p.Active, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUnique(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// Update overwrites an existing project.
func (s *PostgresProjectStore) Update(ctx context.Context, p *models.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	endpoints, err := marshalEndpoints(p.Endpoints)
	if err != nil {
		return err
	}
	query := `
		UPDATE projects SET name = $2, slug = $3, description = $4, integration_type = $5,
			auth_type = $6, base_url = $7, sso_base_url = $8, callback_url = $9,
			endpoints = $10, api_key_enc = $11, api_secret_enc = $12, sso_secret_enc = $13,
			sso_token_lifetime_seconds = $14, active = $15, updated_at = $16
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(p.ID), p.Name, p.Slug, p.Description, string(p.IntegrationType), p.AuthType,
		p.BaseURL, p.SSOBaseURL, p.CallbackURL, endpoints, p.APIKeyEnc, p.APISecretEnc,
		p.SSOSecretEnc, int64(p.TokenLifetime.Seconds()), p.Active, p.UpdatedAt,
	)
	if err != nil {
		if isUnique(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// FindByID retrieves a project.
func (s *PostgresProjectStore) FindByID(ctx context.Context, projectID id.ProjectID) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	p, err := scanProject(s.db.QueryRowContext(ctx, query, uuid.UUID(projectID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find project: %w", err)
	}
	return p, nil
}

// FindBySlug retrieves a project by its slug.
func (s *PostgresProjectStore) FindBySlug(ctx context.Context, slug string) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE slug = $1`
	p, err := scanProject(s.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find project by slug: %w", err)
	}
	return p, nil
}

// List returns all projects.
func (s *PostgresProjectStore) List(ctx context.Context) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(row scanner) (*models.Project, error) {
	var (
		p            models.Project
		pID          uuid.UUID
		intType      string
		endpoints    []byte
		lifetimeSecs int64
	)
	err := row.Scan(&pID, &p.Name, &p.Slug, &p.Description, &intType, &p.AuthType,
		&p.BaseURL, &p.SSOBaseURL, &p.CallbackURL, &endpoints, &p.APIKeyEnc, &p.APISecretEnc,
		&p.SSOSecretEnc, &lifetimeSecs, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.ID = id.ProjectID(pID)
	p.IntegrationType = models.IntegrationType(intType)
	p.TokenLifetime = time.Duration(lifetimeSecs) * time.Second
	if len(endpoints) > 0 {
		if err := json.Unmarshal(endpoints, &p.Endpoints); err != nil {
			return nil, fmt.Errorf("unmarshal endpoints: %w", err)
		}
	}
	return &p, nil
}

func marshalEndpoints(m map[string]string) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal endpoints: %w", err)
	}
	return b, nil
}

func isUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
