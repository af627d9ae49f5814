//go:build integration

package repository_test

import (
	"context"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/moodi-org/pass-backend/internal/models"
	"github.com/moodi-org/pass-backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func setupPostgres(t *testing.T) *repository.ParticipantRepository {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("mi_25"),
		tcpostgres.WithUsername("pass"),
		tcpostgres.WithPassword("pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	migrationURL := "pgx5://" + strings.TrimPrefix(dsn, "postgres://")
	require.NoError(t, repository.Migrate("postgres", migrationURL))
	// a second run is a no-op
	require.NoError(t, repository.Migrate("postgres", migrationURL))

	db, err := sqlx.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return repository.NewParticipantRepository(db)
}

func TestPostgres_ParticipantLifecycle(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	first, err := repo.Upsert(ctx, ashaProfile())
	require.NoError(t, err)

	refreshed := ashaProfile()
	refreshed.Email = "ASHA@example.com"
	refreshed.College = "IIT Y"
	second, err := repo.Upsert(ctx, refreshed)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "IIT Y", second.College)

	require.NoError(t, repo.UpdatePhoto(ctx, "asha@example.com", "photo.jpg", "Passport", "4567"))
	require.NoError(t, repo.UpdatePassImage(ctx, "asha@example.com", "MI042_1_abcd.jpg"))

	p, err := repo.FindByEmail(ctx, "asha@example.com")
	require.NoError(t, err)
	assert.True(t, p.ImageUploaded)
	assert.Equal(t, "4567", p.IDLast4)
	assert.Equal(t, "MI042_1_abcd.jpg", p.PassImagePath)
	assert.False(t, p.UpdatedAt.Before(p.CreatedAt))

	_, err = repo.FindByEmail(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)

	n, err := repo.BulkUpsert(ctx, []models.ParticipantProfile{
		{Email: "ravi@example.com", MINo: "MI100", Name: "Ravi", College: "NIT", Phone: "+919876543210"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
