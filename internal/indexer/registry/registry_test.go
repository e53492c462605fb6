package registry

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/postgres"
)

func TestDisabledRegistryIsNoop(t *testing.T) {
	ctx := context.Background()
	for _, r := range []*Registry{nil, New(nil), {}} {
		assert.NoError(t, r.Migrate(ctx))
		assert.NoError(t, r.StartRun(ctx, "run", "body", 3))
		assert.NoError(t, r.BucketDone(ctx, "run", "body", 17, 2, []string{"17_000.bin"}, 1))
		assert.NoError(t, r.FinishRun(ctx, "run", "body", 2, 1, nil))
		_, err := r.LatestRun(ctx, "body")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	}
}

func TestRegistryAgainstPostgres(t *testing.T) {
	if os.Getenv("SP_POSTGRES_HOST") == "" {
		t.Skip("SP_POSTGRES_HOST not set")
	}
	cfg := config.PostgresConfig{
		Host:            os.Getenv("SP_POSTGRES_HOST"),
		Port:            5432,
		Database:        "wikisearch",
		User:            "wikisearch",
		Password:        os.Getenv("SP_POSTGRES_PASSWORD"),
		SSLMode:         "disable",
		MaxOpenConns:    2,
		ConnMaxLifetime: time.Minute,
	}
	ctx := context.Background()
	db, err := postgres.New(ctx, cfg)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	defer db.Close()

	r := New(db)
	require.NoError(t, r.Migrate(ctx))

	runID := uuid.NewString()
	require.NoError(t, r.StartRun(ctx, runID, "title", 3))
	require.NoError(t, r.BucketDone(ctx, runID, "title", 117, 1, []string{"117_000.bin"}, 1))
	require.NoError(t, r.BucketDone(ctx, runID, "title", 117, 1, []string{"117_000.bin"}, 2))
	require.NoError(t, r.FinishRun(ctx, runID, "title", 4, 3, errors.New("bucket 5: quota")))

	run, err := r.LatestRun(ctx, "title")
	require.NoError(t, err)
	assert.Equal(t, runID, run.RunID)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "bucket 5: quota", run.Error)
	assert.NotNil(t, run.FinishedAt)
}
