package resultdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/standoffalign/internal/blocks"
	"github.com/dgallion1/standoffalign/internal/pipeline"
)

// setupTestDB creates a temporary result database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "results", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })
	return db
}

func TestOpen_MigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening must not re-run the initial migration.
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 1, n)
	assert.Equal(t, path, db.Path())
}

func TestRunSink_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	runID := uuid.NewString()

	sink, err := db.StartRun(ctx, Run{ID: runID, Source: "en", Target: "fr", Input: "aligned.tsv", Policy: "span"})
	require.NoError(t, err)
	assert.Equal(t, runID, sink.RunID())

	want := []pipeline.Result{
		{Line: 1, Side: blocks.Source, URL: "u", Sentence: "world.", Status: pipeline.StatusFound, Block: 0, Offset: 6, Standoff: "p:6-12"},
		{Line: 1, Side: blocks.Target, URL: "v", Sentence: "monde.", Status: pipeline.StatusNotFound, Block: -1, Offset: -1, Reason: "glued"},
		{Line: 2, Side: blocks.Source, Status: pipeline.StatusInvalidRecord, Block: -1, Offset: -1, Reason: "short"},
		{Line: 2, Side: blocks.Target, Status: pipeline.StatusInvalidRecord, Block: -1, Offset: -1, Reason: "short"},
	}
	var stats pipeline.Stats
	for _, r := range want {
		require.NoError(t, sink.Emit(r))
		stats.Add(r)
	}
	stats.Records = 2
	require.NoError(t, sink.Finish(stats))

	got, err := db.Results(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	runs, err := db.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Records)
	assert.Equal(t, "aligned.tsv", runs[0].Input)
	assert.False(t, runs[0].FinishedAt.IsZero())
	require.NotNil(t, runs[0].Stats)
	assert.Equal(t, 1, runs[0].Stats.Source.Found)
	assert.Equal(t, 1, runs[0].Stats.Target.NotFound)
}

func TestRunSink_BatchesAcrossTransactions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	sink, err := db.StartRun(ctx, Run{ID: "batch"})
	require.NoError(t, err)

	n := batchSize + 10
	for i := 0; i < n; i++ {
		require.NoError(t, sink.Emit(pipeline.Result{Line: i + 1, Side: blocks.Source, Status: pipeline.StatusFound}))
	}
	require.NoError(t, sink.Finish(pipeline.Stats{Records: n}))

	got, err := db.Results(ctx, "batch")
	require.NoError(t, err)
	assert.Len(t, got, n)
}

func TestRunSink_Abort(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	sink, err := db.StartRun(ctx, Run{ID: "aborted"})
	require.NoError(t, err)
	require.NoError(t, sink.Emit(pipeline.Result{Line: 1, Side: blocks.Source, Status: pipeline.StatusFound}))
	require.NoError(t, sink.Abort())

	got, err := db.Results(ctx, "aborted")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunSink_DuplicateResultFails(t *testing.T) {
	db := setupTestDB(t)
	sink, err := db.StartRun(context.Background(), Run{ID: "dup"})
	require.NoError(t, err)
	r := pipeline.Result{Line: 1, Side: blocks.Source, Status: pipeline.StatusFound}
	require.NoError(t, sink.Emit(r))
	assert.Error(t, sink.Emit(r))
	assert.NoError(t, sink.Abort())
}

func TestStartRun_DuplicateID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, err := db.StartRun(ctx, Run{ID: "same", StartedAt: time.Now()})
	require.NoError(t, err)
	_, err = db.StartRun(ctx, Run{ID: "same"})
	assert.Error(t, err)
}

func TestRecordDocuments(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, err := db.StartRun(ctx, Run{ID: "docs"})
	require.NoError(t, err)

	src := blocks.NewStore(blocks.Source)
	src.Append("http://a", blocks.Block{Text: "Same text.", Standoff: "p:0-10"})
	src.Append("http://b", blocks.Block{Text: "Same text.", Standoff: "div:0-10"})
	src.Append("http://c", blocks.Block{Text: "Other.", Standoff: "p:0-6"})
	require.NoError(t, db.RecordDocuments(ctx, "docs", src))

	urls, err := db.DocumentsByFingerprint(ctx, src.Get("http://a").Fingerprint())
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a", "http://b"}, urls)
}

func TestRecordDocuments_UnknownRun(t *testing.T) {
	db := setupTestDB(t)
	src := blocks.NewStore(blocks.Source)
	src.Append("http://a", blocks.Block{Text: "x", Standoff: "p:0-1"})
	assert.Error(t, db.RecordDocuments(context.Background(), "missing", src))
}
