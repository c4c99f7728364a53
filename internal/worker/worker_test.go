package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarelab/hivetrace/internal/config"
	"github.com/snarelab/hivetrace/internal/store"
	"github.com/snarelab/hivetrace/internal/stream"
)

func testWorker(t *testing.T) (*Worker, *stream.Client, string) {
	t.Helper()

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	sc := stream.New(config.RedisConfig{
		Host:   mr.Host(),
		Port:   port,
		Stream: "honeypot_sessions",
		MaxLen: 1000,
	})
	t.Cleanup(func() { sc.Close() })

	dir := t.TempDir()
	logger := slog.Default()
	cfg := config.WorkerConfig{
		Group:        "workers",
		ConsumerName: "w1",
		BatchSize:    10,
		BlockMS:      50,
	}
	w := New(sc, store.New(dir, logger), store.NewSweeper(dir, 30, logger), nil, cfg, logger)
	w.now = func() time.Time { return time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC) }
	return w, sc, dir
}

func validSession(uuid string) json.RawMessage {
	raw := map[string]any{
		"sess_uuid":  uuid,
		"peer_ip":    "203.0.113.10",
		"user_agent": "sqlmap/1.7",
		"start_time": "2026-08-20T09:58:00Z",
		"end_time":   "2026-08-20T10:00:00Z",
		"paths": []map[string]any{
			{"path": "/login?id=1' OR '1'='1", "method": "POST", "response_status": 500},
		},
	}
	b, _ := json.Marshal(raw)
	return b
}

func TestProcessBatchPersistsAndAcks(t *testing.T) {
	w, sc, dir := testWorker(t)
	ctx := context.Background()

	require.NoError(t, sc.EnsureGroup(ctx, "workers"))
	_, err := sc.Publish(ctx, validSession("sess-1"))
	require.NoError(t, err)
	_, err = sc.Publish(ctx, validSession("sess-2"))
	require.NoError(t, err)

	entries, err := sc.ReadBatch(ctx, "workers", "w1", 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	w.processBatch(ctx, entries)

	day, err := store.NewReader(dir).ReadDay("2026-08-20")
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, "sess-1", day[0].SessUUID)
	assert.Contains(t, day[0].AttackTypes, "sqli")
	assert.NotZero(t, day[0].RiskScore)

	// Acked after persist: nothing left pending.
	pending, err := sc.Reclaim(ctx, "workers", "w1", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestBadJSONIsAckedAndDropped(t *testing.T) {
	w, sc, dir := testWorker(t)
	ctx := context.Background()

	require.NoError(t, sc.EnsureGroup(ctx, "workers"))
	_, err := sc.Publish(ctx, json.RawMessage(`{not json`))
	require.NoError(t, err)
	_, err = sc.Publish(ctx, validSession("sess-ok"))
	require.NoError(t, err)

	entries, err := sc.ReadBatch(ctx, "workers", "w1", 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	w.processBatch(ctx, entries)

	// Only the valid session is persisted.
	day, err := store.NewReader(dir).ReadDay("2026-08-20")
	require.NoError(t, err)
	require.Len(t, day, 1)
	assert.Equal(t, "sess-ok", day[0].SessUUID)

	// The poison entry was acked anyway; it would fail identically forever.
	pending, err := sc.Reclaim(ctx, "workers", "w1", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestInvalidSessionIsDropped(t *testing.T) {
	w, sc, dir := testWorker(t)
	ctx := context.Background()

	require.NoError(t, sc.EnsureGroup(ctx, "workers"))
	// Placeholder UUID fails validation after normalization.
	_, err := sc.Publish(ctx, json.RawMessage(`{"sess_uuid":"unknown","peer_ip":"203.0.113.10"}`))
	require.NoError(t, err)

	entries, err := sc.ReadBatch(ctx, "workers", "w1", 10, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	w.processBatch(ctx, entries)

	day, err := store.NewReader(dir).ReadDay("2026-08-20")
	require.NoError(t, err)
	assert.Empty(t, day)
}

func TestRedeliveryOverwritesInsteadOfDuplicating(t *testing.T) {
	w, sc, dir := testWorker(t)
	ctx := context.Background()

	require.NoError(t, sc.EnsureGroup(ctx, "workers"))
	_, err := sc.Publish(ctx, validSession("sess-dup"))
	require.NoError(t, err)
	_, err = sc.Publish(ctx, validSession("sess-dup"))
	require.NoError(t, err)

	entries, err := sc.ReadBatch(ctx, "workers", "w1", 10, 50*time.Millisecond)
	require.NoError(t, err)
	w.processBatch(ctx, entries)

	day, err := store.NewReader(dir).ReadDay("2026-08-20")
	require.NoError(t, err)
	assert.Len(t, day, 1)
}
