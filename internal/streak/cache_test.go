package streak

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veikko/twitch-harvester/internal/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.Setup(logger.Config{Level: slog.LevelError, Colored: false})
	require.NoError(t, err)
	return log
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streaks.json")
	c := Load(path, testLogger(t))
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.ClaimedWithin("anyone", time.Hour))
}

func TestLoadCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streaks.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))

	c := Load(path, testLogger(t))
	assert.Equal(t, 0, c.Len())
}

func TestMarkAndSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streaks.json")
	log := testLogger(t)

	c := Load(path, log)
	c.Mark("caster")
	require.NoError(t, c.Save())

	reloaded := Load(path, log)
	assert.True(t, reloaded.ClaimedWithin("caster", time.Hour))
	assert.False(t, reloaded.ClaimedWithin("other", time.Hour))
}

func TestClaimedWithinExpires(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streaks.json")
	c := Load(path, testLogger(t))

	c.mu.Lock()
	c.entries["caster"] = entry{LastStreakTimestamp: time.Now().Add(-7 * time.Hour).Unix()}
	c.mu.Unlock()

	assert.False(t, c.ClaimedWithin("caster", 6*time.Hour))
	assert.True(t, c.ClaimedWithin("caster", 8*time.Hour))
}

func TestSaveWithoutMarksIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streaks.json")
	c := Load(path, testLogger(t))
	require.NoError(t, c.Save())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "clean cache must not touch the disk")
}
