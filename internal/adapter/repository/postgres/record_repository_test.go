package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/V4T54L/telemetry-sink/internal/adapter/pii"
	"github.com/V4T54L/telemetry-sink/internal/domain"
	"github.com/V4T54L/telemetry-sink/internal/usecase"
)

const testTable = "sink_test_telemetry"

// setupTestDatabase starts a PostgreSQL container and returns a repository
// with its schema in place.
func setupTestDatabase(t *testing.T) (*RecordRepository, *sql.DB) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("telemetry_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := NewRecordRepository(db, testTable, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, repo.EnsureSchema(ctx))
	return repo, db
}

func TestRecordRepository(t *testing.T) {
	repo, db := setupTestDatabase(t)
	ctx := context.Background()

	t.Run("EnsureSchema is idempotent and creates indexes", func(t *testing.T) {
		require.NoError(t, repo.EnsureSchema(ctx))

		var count int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pg_indexes WHERE tablename = $1 AND indexname LIKE '%_idx'`, testTable).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, len(indexedColumns), count)
	})

	t.Run("InsertRecord stores derived and absent fields", func(t *testing.T) {
		env, err := domain.ParseEnvelope(`{"id":"api.1","ver":"3.0","ets":100,"mid":"m1","syncts":200,"params":{"msgid":"x"},"events":[{"eid":"LOG","context":{"channel":"c1"},"edata":{"type":"other"}}]}`)
		require.NoError(t, err)
		events, err := env.Validate()
		require.NoError(t, err)

		require.NoError(t, repo.InsertRecord(ctx, usecase.ShapeRecord(env, events[0])))

		var (
			apiID, channel string
			pid            sql.NullString
			ets, syncts    string
			eventsJSON     []byte
		)
		err = db.QueryRowContext(ctx, `SELECT api_id, channel, pid, ets, syncts, events FROM `+testTable+` WHERE mid = 'm1'`).
			Scan(&apiID, &channel, &pid, &ets, &syncts, &eventsJSON)
		require.NoError(t, err)

		assert.Equal(t, "api.1", apiID)
		assert.Equal(t, "c1", channel)
		assert.False(t, pid.Valid, "pid should be NULL without pdata")
		assert.Equal(t, "100", ets)
		assert.Equal(t, "200", syncts)

		var stored map[string]any
		require.NoError(t, json.Unmarshal(eventsJSON, &stored))
		assert.Equal(t, "LOG", stored["eid"])
	})

	t.Run("InsertRecord keeps non string scalars", func(t *testing.T) {
		env, err := domain.ParseEnvelope(`{"id":"api.1","ets":1.7e12,"syncts":"late","mid":"m2","events":[{"eid":"LOG","context":{"channel":7,"pdata":{"pid":"p"}},"edata":{"type":""}}]}`)
		require.NoError(t, err)
		events, err := env.Validate()
		require.NoError(t, err)

		require.NoError(t, repo.InsertRecord(ctx, usecase.ShapeRecord(env, events[0])))

		var (
			channel, pid, syncts string
			ets                  float64
			eventsJSON           []byte
		)
		err = db.QueryRowContext(ctx, `SELECT channel, pid, (ets #>> '{}')::float8, syncts #>> '{}', events FROM `+testTable+` WHERE mid = 'm2'`).
			Scan(&channel, &pid, &ets, &syncts, &eventsJSON)
		require.NoError(t, err)

		assert.Equal(t, "7", channel)
		assert.Equal(t, "p", pid)
		assert.Equal(t, 1.7e12, ets)
		assert.Equal(t, "late", syncts)
		assert.JSONEq(t, `{"context":{"channel":7,"pdata":{"pid":"p"}},"edata":{"type":""},"eid":"LOG"}`, string(eventsJSON))
	})

	t.Run("end to end batch through the dispatcher", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		dispatcher := usecase.NewDispatchBatchUseCase(repo, logger, nil)
		forwarder := usecase.NewForwardBatchUseCase(nil, pii.NewAnonymizer(pii.DefaultRules(), logger), "", false, logger, nil)
		sink := usecase.NewSink(dispatcher, forwarder, logger)

		msg := `{"id":"api.batch","mid":"batch-1","msg":{"events":[
			{"eid":"A","context":{"pdata":{"pid":"p1"}}},
			{"eid":"B","context":{}},
			{"eid":"C","context":{}}]}}`
		require.NoError(t, sink.Log(ctx, "info", msg, nil))

		var count int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+testTable+` WHERE mid = 'batch-1'`).Scan(&count))
		assert.Equal(t, 3, count)
	})

	t.Run("failed inserts are reported per record", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := repo.InsertRecord(cancelled, domain.StorageRecord{MID: "never"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}
