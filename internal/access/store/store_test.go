package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hafizsameer11/superCrm/internal/access/models"
	"github.com/hafizsameer11/superCrm/internal/sentinel"
	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newStoredAccess(t *testing.T, s *InMemoryAccessStore) *models.Access {
	t.Helper()
	a, err := models.NewAccess(id.NewCompanyID(), id.NewProjectID(), nil, testNow)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), a))
	return a
}

func TestAccessStoreUniquePair(t *testing.T) {
	s := NewInMemoryAccessStore()
	a := newStoredAccess(t, s)

	dup, err := models.NewAccess(a.CompanyID, a.ProjectID, nil, testNow)
	require.NoError(t, err)
	err = s.Create(context.Background(), dup)
	require.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
}

func TestAccessStoreRoundTrip(t *testing.T) {
	s := NewInMemoryAccessStore()
	a := newStoredAccess(t, s)

	got, err := s.FindByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got, err = s.FindByCompanyAndProject(context.Background(), a.CompanyID, a.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = s.FindByID(context.Background(), id.NewAccessID())
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestAccessStoreCopyOnRead(t *testing.T) {
	s := NewInMemoryAccessStore()
	a := newStoredAccess(t, s)

	got, err := s.FindByID(context.Background(), a.ID)
	require.NoError(t, err)
	got.Status = models.AccessStatusRevoked

	again, err := s.FindByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccessStatusPending, again.Status, "mutating a returned entry must not affect the store")
}

func TestAccessStoreUpdateUnknown(t *testing.T) {
	s := NewInMemoryAccessStore()
	a, err := models.NewAccess(id.NewCompanyID(), id.NewProjectID(), nil, testNow)
	require.NoError(t, err)
	require.ErrorIs(t, s.Update(context.Background(), a), sentinel.ErrNotFound)
}

func TestAccessStoreListRetryable(t *testing.T) {
	s := NewInMemoryAccessStore()
	ctx := context.Background()

	failed := newStoredAccess(t, s)
	require.NoError(t, failed.MarkFailed("signup timed out", testNow))
	require.NoError(t, s.Update(ctx, failed))

	exhausted := newStoredAccess(t, s)
	require.NoError(t, exhausted.MarkFailed("signup timed out", testNow))
	exhausted.RetryCount = models.MaxRetries
	require.NoError(t, s.Update(ctx, exhausted))

	newStoredAccess(t, s) // pending, not retryable

	got, err := s.ListRetryable(ctx, models.MaxRetries)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, failed.ID, got[0].ID)
}

func TestProjectUserCreateIfAbsent(t *testing.T) {
	s := NewInMemoryProjectUserStore()
	ctx := context.Background()

	accessID := id.NewAccessID()
	userID := id.NewUserID()

	first := models.NewProjectUser(accessID, userID, testNow)
	first.ExternalUserID = "ext-42"
	got, err := s.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	// Same (access, user) pair returns the existing mapping.
	second := models.NewProjectUser(accessID, userID, testNow)
	got, err = s.CreateIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	// Same external account under the same access also dedupes.
	third := models.NewProjectUser(accessID, id.NewUserID(), testNow)
	third.ExternalUserID = "ext-42"
	got, err = s.CreateIfAbsent(ctx, third)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	// A different user under a different access gets its own row.
	fourth := models.NewProjectUser(id.NewAccessID(), userID, testNow)
	got, err = s.CreateIfAbsent(ctx, fourth)
	require.NoError(t, err)
	assert.Equal(t, fourth.ID, got.ID)
}

func TestProjectUserListByAccess(t *testing.T) {
	s := NewInMemoryProjectUserStore()
	ctx := context.Background()

	accessID := id.NewAccessID()
	for i := 0; i < 3; i++ {
		_, err := s.CreateIfAbsent(ctx, models.NewProjectUser(accessID, id.NewUserID(), testNow))
		require.NoError(t, err)
	}
	_, err := s.CreateIfAbsent(ctx, models.NewProjectUser(id.NewAccessID(), id.NewUserID(), testNow))
	require.NoError(t, err)

	got, err := s.ListByAccess(ctx, accessID)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
