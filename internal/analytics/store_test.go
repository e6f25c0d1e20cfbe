package analytics

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veikko/twitch-harvester/internal/logger"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	log, err := logger.Setup(logger.Config{Level: slog.LevelError, Colored: false})
	require.NoError(t, err)

	store, err := Open(filepath.Join(t.TempDir(), "analytics.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndQuerySeries(t *testing.T) {
	store := testStore(t)
	ctx := t.Context()

	require.NoError(t, store.RecordPoints(ctx, "caster", 100, "WATCH"))
	require.NoError(t, store.RecordPoints(ctx, "caster", 150, "CLAIM"))
	require.NoError(t, store.RecordPoints(ctx, "other", 999, ""))

	series, err := store.Series(ctx, "caster", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 100, series[0].Points)
	assert.Equal(t, "CLAIM", series[1].Event)
}

func TestSeriesSinceFiltersOldRows(t *testing.T) {
	store := testStore(t)
	ctx := t.Context()

	require.NoError(t, store.RecordPoints(ctx, "caster", 50, ""))

	series, err := store.Series(ctx, "caster", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestAnnotations(t *testing.T) {
	store := testStore(t)
	ctx := t.Context()

	require.NoError(t, store.Annotate(ctx, "caster", "PREDICTION", "Bet placed: 500 on Yes", "#ff8800"))

	anns, err := store.Annotations(ctx, "caster", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, anns, 1)
	assert.Equal(t, "PREDICTION", anns[0].Event)
	assert.Equal(t, "#ff8800", anns[0].Color)
}
