package license

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(offset int) time.Time {
	return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestRecordCommandTracksTotalsAndHistogram(t *testing.T) {
	u := NewUsageStats()
	u.RecordCommand("search", 500, day(0))
	u.RecordCommand("search", 250, day(0))
	u.RecordCommand("install", 100, day(0))

	assert.Equal(t, int64(3), u.TotalCommands)
	assert.Equal(t, int64(850), u.TimeSavedMs)
	assert.Equal(t, int64(2), u.CommandCounts["search"])
	assert.Equal(t, int64(1), u.CommandCounts["install"])
	assert.Equal(t, int64(3), u.QueriesToday)
}

func TestQueriesTodayResetsOnDayRollover(t *testing.T) {
	u := NewUsageStats()
	u.RecordCommand("search", 0, day(0))
	u.RecordCommand("search", 0, day(0))
	u.RecordCommand("search", 0, day(1))

	assert.Equal(t, int64(1), u.QueriesToday)
	assert.Equal(t, int64(3), u.QueriesMonth)
}

func TestQueriesMonthResetsOnMonthRollover(t *testing.T) {
	u := NewUsageStats()
	u.RecordCommand("search", 0, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC))
	u.RecordCommand("search", 0, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, int64(1), u.QueriesMonth)
}

func TestStreakIncrementsOnConsecutiveDays(t *testing.T) {
	u := NewUsageStats()
	u.RecordCommand("x", 0, day(0))
	u.RecordCommand("x", 0, day(1))
	u.RecordCommand("x", 0, day(2))

	assert.Equal(t, 3, u.CurrentStreak)
	assert.Equal(t, 3, u.LongestStreak)
}

func TestStreakResetsOnGap(t *testing.T) {
	u := NewUsageStats()
	u.RecordCommand("x", 0, day(0))
	u.RecordCommand("x", 0, day(1))
	u.RecordCommand("x", 0, day(5))

	assert.Equal(t, 1, u.CurrentStreak)
	assert.Equal(t, 2, u.LongestStreak)
}

func TestStreakUnchangedOnSameDayRepeat(t *testing.T) {
	u := NewUsageStats()
	u.RecordCommand("x", 0, day(0))
	u.RecordCommand("x", 0, day(0))
	u.RecordCommand("x", 0, day(0))

	assert.Equal(t, 1, u.CurrentStreak)
}

func TestAchievementThresholds(t *testing.T) {
	u := NewUsageStats()
	u.RecordCommand("x", 0, day(0))
	assert.True(t, u.Achievements[AchievementFirstCommand])
	assert.False(t, u.Achievements[Achievement100Commands])

	for i := 0; i < 99; i++ {
		u.RecordCommand("x", 0, day(0))
	}
	assert.True(t, u.Achievements[Achievement100Commands])
	assert.False(t, u.Achievements[Achievement1000Commands])
}

func TestAchievementTimeSavedThresholds(t *testing.T) {
	u := NewUsageStats()
	u.RecordCommand("x", int64(time.Hour/time.Millisecond), day(0))
	assert.True(t, u.Achievements[AchievementSaved1Min])
	assert.True(t, u.Achievements[AchievementSaved1Hour])
	assert.False(t, u.Achievements[AchievementSaved24Hours])
}

func TestAchievementStreakThresholds(t *testing.T) {
	u := NewUsageStats()
	for i := 0; i < 7; i++ {
		u.RecordCommand("x", 0, day(i))
	}
	assert.True(t, u.Achievements[AchievementStreak7Days])
	assert.False(t, u.Achievements[AchievementStreak30Days])
}

func TestAchievementSevenRuntimes(t *testing.T) {
	u := NewUsageStats()
	runtimes := []string{"node", "python", "go", "rust", "bun", "ruby", "java"}
	for _, r := range runtimes {
		u.RecordRuntime(r)
	}
	assert.True(t, u.Achievements[Achievement7Runtimes])
}

func TestSaveAndLoadUsageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usage.json")

	u := NewUsageStats()
	u.RecordCommand("search", 123, day(0))
	require.NoError(t, SaveUsage(path, u))

	loaded, err := LoadUsage(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.TotalCommands)
	assert.Equal(t, int64(123), loaded.TimeSavedMs)
}

func TestLoadUsageMissingFileReturnsFresh(t *testing.T) {
	u, err := LoadUsage(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.TotalCommands)
	assert.NotNil(t, u.CommandCounts)
}
