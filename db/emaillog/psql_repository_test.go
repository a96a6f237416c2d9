package emaillog

import (
	"context"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parktickets/db"
	"parktickets/entity"
)

func TestMain(m *testing.M) {
	container, url := db.StartPostgresContainer()
	os.Setenv("POSTGRES_URL", url)

	code := m.Run()

	_ = container.Terminate(context.Background())
	os.Exit(code)
}

func TestPostgresRepository_sentDedup(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresRepository(db.GetDb(t))

	sent, err := repo.HasSent(ctx, "MJX-NEW")
	require.NoError(t, err)
	assert.False(t, sent)

	err = repo.LogSent(ctx, entity.EmailLog{
		Email:    "ada@example.com",
		TicketID: "MJX-NEW",
	})
	require.NoError(t, err)

	sent, err = repo.HasSent(ctx, "MJX-NEW")
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestPostgresRepository_UpsertFailed_accumulatesRetries(t *testing.T) {
	ctx := context.Background()
	repo := NewPostgresRepository(db.GetDb(t))

	_, err := repo.LastFailed(ctx, "MJX-FAIL")
	assert.ErrorIs(t, err, entity.ErrNotFound)

	err = repo.UpsertFailed(ctx, entity.EmailLog{
		Email:    "bob@example.com",
		TicketID: "MJX-FAIL",
		Error:    "smtp unavailable",
	})
	require.NoError(t, err)

	failed, err := repo.LastFailed(ctx, "MJX-FAIL")
	require.NoError(t, err)
	assert.Equal(t, 0, failed.RetryCount)
	assert.False(t, failed.IsRetry)

	// each later failure folds into the same row
	for i := 0; i < 2; i++ {
		err = repo.UpsertFailed(ctx, entity.EmailLog{
			Email:    "bob@example.com",
			TicketID: "MJX-FAIL",
			Error:    "smtp still unavailable",
		})
		require.NoError(t, err)
	}

	failed, err = repo.LastFailed(ctx, "MJX-FAIL")
	require.NoError(t, err)
	assert.Equal(t, 2, failed.RetryCount)
	assert.True(t, failed.IsRetry)
	assert.Equal(t, "smtp still unavailable", failed.Error)

	// a FAILED row does not count as delivered
	sent, err := repo.HasSent(ctx, "MJX-FAIL")
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestPostgresRepository_Stats(t *testing.T) {
	ctx := context.Background()
	database := db.GetDb(t)
	repo := NewPostgresRepository(database)

	// start from a clean log so the aggregates are exact
	_, err := database.ExecContext(ctx, `DELETE FROM email_logs`)
	require.NoError(t, err)

	require.NoError(t, repo.LogSent(ctx, entity.EmailLog{Email: "a@example.com", TicketID: "MJX-S1"}))
	require.NoError(t, repo.LogSent(ctx, entity.EmailLog{Email: "b@example.com", TicketID: "MJX-S2"}))
	require.NoError(t, repo.UpsertFailed(ctx, entity.EmailLog{Email: "c@example.com", TicketID: "MJX-S3", Error: "boom"}))

	_, err = database.ExecContext(ctx, `
		INSERT INTO tickets (ticket_id, slot_date, start_time, end_time, payment_status)
		VALUES
			('MJX-S1', '2026-09-01', '10:00', '11:00', 'paid'),
			('MJX-S2', '2026-09-01', '10:00', '11:00', 'paid'),
			('MJX-S3', '2026-09-01', '10:00', '11:00', 'paid'),
			('MJX-S4', '2026-09-01', '10:00', '11:00', 'paid')
	`)
	require.NoError(t, err)

	stats, err := repo.Stats(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalTickets)
	assert.Equal(t, 2, stats.SentEmails)
	assert.Equal(t, 1, stats.FailedEmails)
	assert.InDelta(t, 50.0, stats.SuccessRate, 0.01)
	assert.NotNil(t, stats.LastSent)
	assert.NotNil(t, stats.LastFailed)
}
