package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hafizsameer11/superCrm/internal/access/models"
	"github.com/hafizsameer11/superCrm/internal/sentinel"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

func TestPostgresAccessCreateUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO company_project_access").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "company_project_access_pair_key"})

	s := NewPostgresAccessStore(db)
	a, err := models.NewAccess(id.NewCompanyID(), id.NewProjectID(), nil, testNow)
	require.NoError(t, err)

	err = s.Create(context.Background(), a)
	require.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAccessUpdateMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE company_project_access").
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := NewPostgresAccessStore(db)
	a, err := models.NewAccess(id.NewCompanyID(), id.NewProjectID(), nil, testNow)
	require.NoError(t, err)

	err = s.Update(context.Background(), a)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresAccessListRetryableScan(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	a, err := models.NewAccess(id.NewCompanyID(), id.NewProjectID(), map[string]string{"plan": "pro"}, testNow)
	require.NoError(t, err)
	require.NoError(t, a.MarkFailed("connect timeout", testNow))
	a.RetryCount = 1

	cols := []string{
		"id", "company_id", "project_id", "status", "credentials", "external_company_id",
		"signup_snapshot", "retry_count", "last_error", "rate_limit_per_minute", "rate_limit_per_hour",
		"circuit_breaker_state", "circuit_breaker_failures", "circuit_breaker_reset_at",
		"approved_at", "approved_by", "last_sync_at", "created_at", "updated_at",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		a.ID.String(), a.CompanyID.String(), a.ProjectID.String(), string(a.Status), nil, nil,
		[]byte(`{"plan":"pro"}`), a.RetryCount, a.LastError, a.RateLimitPerMinute, a.RateLimitPerHour,
		string(a.CircuitState), a.CircuitFailures, nil,
		nil, nil, nil, a.CreatedAt, a.UpdatedAt,
	)
	mock.ExpectQuery("FROM company_project_access").
		WithArgs(string(models.AccessStatusPartialFailed), models.MaxRetries).
		WillReturnRows(rows)

	s := NewPostgresAccessStore(db)
	got, err := s.ListRetryable(context.Background(), models.MaxRetries)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, "connect timeout", got[0].LastError)
	assert.Equal(t, map[string]string{"plan": "pro"}, got[0].SignupSnapshot)
	require.NoError(t, mock.ExpectationsWereMet())
}
