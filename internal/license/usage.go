package license

import (
	"encoding/json"
	"os"
	"time"

	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// Achievement is one entry in UsageStats' achievement set (§4.4).
type Achievement string

const (
	AchievementFirstCommand    Achievement = "first_command"
	Achievement100Commands     Achievement = "100_commands"
	Achievement1000Commands    Achievement = "1000_commands"
	Achievement10000Commands   Achievement = "10000_commands"
	AchievementSaved1Min       Achievement = "saved_1_min"
	AchievementSaved1Hour      Achievement = "saved_1_hour"
	AchievementSaved24Hours    Achievement = "saved_24_hours"
	AchievementStreak7Days     Achievement = "streak_7_days"
	AchievementStreak30Days    Achievement = "streak_30_days"
	Achievement7Runtimes       Achievement = "7_runtimes"
	AchievementFirstSBOM       Achievement = "first_sbom"
	AchievementFirstVulnFound  Achievement = "first_vuln_found"
)

// UsageStats is §3's UsageStats record, persisted atomically to
// usage.json (§6).
type UsageStats struct {
	TotalCommands   int64                  `json:"total_commands"`
	TimeSavedMs     int64                  `json:"time_saved_ms"`
	CommandCounts   map[string]int64       `json:"command_counts"`
	QueriesToday    int64                  `json:"queries_today"`
	QueriesMonth    int64                  `json:"queries_month"`
	LastCommandDate string                 `json:"last_command_date"` // YYYY-MM-DD
	LastCommandMonth string                `json:"last_command_month"` // YYYY-MM
	CurrentStreak   int                    `json:"current_streak"`
	LongestStreak   int                    `json:"longest_streak"`
	Achievements    map[Achievement]bool   `json:"achievements"`
	RuntimesUsed    map[string]bool        `json:"runtimes_used"`
	FirstUseDate    string                 `json:"first_use_date"`
	LastUseDate     string                 `json:"last_use_date"`
}

// NewUsageStats returns a zero-value UsageStats with its maps initialized.
func NewUsageStats() UsageStats {
	return UsageStats{
		CommandCounts: make(map[string]int64),
		Achievements:  make(map[Achievement]bool),
		RuntimesUsed:  make(map[string]bool),
	}
}

// RecordCommand updates totals, the per-command histogram, today/month
// rollovers, the streak, and the achievement set (§4.4 record_command).
// now is injected so callers (and tests) control rollover boundaries
// deterministically.
func (u *UsageStats) RecordCommand(name string, timeSavedMs int64, now time.Time) {
	if u.CommandCounts == nil {
		u.CommandCounts = make(map[string]int64)
	}
	if u.Achievements == nil {
		u.Achievements = make(map[Achievement]bool)
	}

	u.TotalCommands++
	u.TimeSavedMs += timeSavedMs
	u.CommandCounts[name]++

	today := now.Format("2006-01-02")
	month := now.Format("2006-01")

	if u.LastCommandDate != today {
		u.QueriesToday = 0
	}
	if u.LastCommandMonth != month {
		u.QueriesMonth = 0
	}
	u.QueriesToday++
	u.QueriesMonth++

	u.updateStreak(today)

	if u.FirstUseDate == "" {
		u.FirstUseDate = today
	}
	u.LastUseDate = today
	u.LastCommandDate = today
	u.LastCommandMonth = month

	u.evaluateAchievements()
}

// updateStreak increments on a consecutive day, resets on a gap ≥ 2 days,
// and is a no-op on a repeat command the same day (§4.4).
func (u *UsageStats) updateStreak(today string) {
	if u.LastCommandDate == "" {
		u.CurrentStreak = 1
	} else if u.LastCommandDate == today {
		// same day, streak unchanged
	} else {
		prev, err1 := time.Parse("2006-01-02", u.LastCommandDate)
		cur, err2 := time.Parse("2006-01-02", today)
		if err1 == nil && err2 == nil {
			gapDays := int(cur.Sub(prev).Hours() / 24)
			if gapDays == 1 {
				u.CurrentStreak++
			} else {
				u.CurrentStreak = 1
			}
		} else {
			u.CurrentStreak = 1
		}
	}

	if u.CurrentStreak > u.LongestStreak {
		u.LongestStreak = u.CurrentStreak
	}
}

// RecordRuntime marks a polyglot runtime as used, for the "7 unique
// runtimes" achievement.
func (u *UsageStats) RecordRuntime(name string) {
	if u.RuntimesUsed == nil {
		u.RuntimesUsed = make(map[string]bool)
	}
	u.RuntimesUsed[name] = true
	u.evaluateAchievements()
}

// RecordSBOMGenerated and RecordVulnFound mark their respective
// first-occurrence achievements.
func (u *UsageStats) RecordSBOMGenerated() {
	u.ensureAchievements()
	u.Achievements[AchievementFirstSBOM] = true
}

func (u *UsageStats) RecordVulnFound() {
	u.ensureAchievements()
	u.Achievements[AchievementFirstVulnFound] = true
}

func (u *UsageStats) ensureAchievements() {
	if u.Achievements == nil {
		u.Achievements = make(map[Achievement]bool)
	}
}

func (u *UsageStats) evaluateAchievements() {
	u.ensureAchievements()

	if u.TotalCommands >= 1 {
		u.Achievements[AchievementFirstCommand] = true
	}
	if u.TotalCommands >= 100 {
		u.Achievements[Achievement100Commands] = true
	}
	if u.TotalCommands >= 1000 {
		u.Achievements[Achievement1000Commands] = true
	}
	if u.TotalCommands >= 10000 {
		u.Achievements[Achievement10000Commands] = true
	}

	savedMin := int64(time.Minute / time.Millisecond)
	savedHour := int64(time.Hour / time.Millisecond)
	savedDay := 24 * savedHour
	if u.TimeSavedMs >= savedMin {
		u.Achievements[AchievementSaved1Min] = true
	}
	if u.TimeSavedMs >= savedHour {
		u.Achievements[AchievementSaved1Hour] = true
	}
	if u.TimeSavedMs >= savedDay {
		u.Achievements[AchievementSaved24Hours] = true
	}

	if u.CurrentStreak >= 7 {
		u.Achievements[AchievementStreak7Days] = true
	}
	if u.CurrentStreak >= 30 {
		u.Achievements[AchievementStreak30Days] = true
	}

	if len(u.RuntimesUsed) >= 7 {
		u.Achievements[Achievement7Runtimes] = true
	}
}

// SaveUsage persists u atomically via write-to-temp-then-rename (§5).
func SaveUsage(path string, u UsageStats) error {
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return omgerrors.Internal("failed to marshal usage stats", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return omgerrors.Internal("failed to write usage stats", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return omgerrors.Internal("failed to persist usage stats", err)
	}
	return nil
}

// LoadUsage reads usage.json, or a fresh NewUsageStats() if absent.
func LoadUsage(path string) (UsageStats, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewUsageStats(), nil
	}
	if err != nil {
		return UsageStats{}, omgerrors.Internal("failed to read usage stats", err)
	}

	u := NewUsageStats()
	if err := json.Unmarshal(data, &u); err != nil {
		return UsageStats{}, omgerrors.InvalidJSON(path, err)
	}
	return u, nil
}
