package automation

import (
	"testing"
	"time"

	"whatsapp-automation/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOpen(t *testing.T) {
	night := weekdays()
	night[5] = models.WorkingDay{Day: "friday", Open: true, StartTime: "22:00", EndTime: "02:00"}
	night[6] = models.WorkingDay{Day: "Saturday", Open: true, StartTime: "10:00", EndTime: "24:00"}

	allDay := weekdays()
	allDay[1] = models.WorkingDay{Day: "monday", Open: true, StartTime: "00:00", EndTime: "23:59"}
	allDay[2] = models.WorkingDay{Day: "tuesday", Open: true, StartTime: "00:00", EndTime: "23:59"}

	saturday := func(h, m int) time.Time { return time.Date(2025, 3, 8, h, m, 0, 0, time.UTC) }
	friday := func(h, m int) time.Time { return time.Date(2025, 3, 7, h, m, 0, 0, time.UTC) }

	tests := []struct {
		name string
		days []models.WorkingDay
		at   time.Time
		want bool
	}{
		{"monday opening minute", weekdays(), monday(9, 0), true},
		{"monday before opening", weekdays(), monday(8, 59), false},
		{"monday last minute", weekdays(), monday(16, 59), true},
		{"monday closing minute", weekdays(), monday(17, 0), false},
		{"monday evening", weekdays(), monday(20, 0), false},
		{"sunday closed", weekdays(), time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC), false},
		{"overnight before midnight", night, friday(23, 30), true},
		{"overnight after midnight", night, saturday(1, 30), true},
		{"overnight ended", night, saturday(2, 0), false},
		{"until end of day", night, saturday(23, 59), true},
		{"23:59 closes at end of day", allDay, monday(23, 59), true},
		{"23:59 next day opens at midnight", allDay, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), true},
		{"empty schedule", nil, monday(10, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsOpen(tt.days, tt.at))
		})
	}
}

func TestParseClock(t *testing.T) {
	got, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, got)

	got, err = ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, 1440, got)

	for _, bad := range []string{"", "9:30", "24:01", "12:60", "ab:cd", "1230"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestValidateSettings(t *testing.T) {
	valid := func() *models.AutomationSettings {
		return &models.AutomationSettings{
			WorkspaceID:     "ws1",
			TimeZone:        "Europe/Berlin",
			WorkingHours:    weekdays(),
			AutomationRules: []models.AutomationRule{rule("ooo", "Out of office")},
		}
	}
	require.NoError(t, ValidateSettings(valid()))

	tests := []struct {
		name   string
		mutate func(s *models.AutomationSettings)
	}{
		{"six days", func(s *models.AutomationSettings) { s.WorkingHours = s.WorkingHours[:6] }},
		{"duplicate day", func(s *models.AutomationSettings) { s.WorkingHours[0].Day = "monday" }},
		{"unknown day", func(s *models.AutomationSettings) { s.WorkingHours[0].Day = "funday" }},
		{"open without times", func(s *models.AutomationSettings) { s.WorkingHours[1].StartTime = "" }},
		{"malformed time", func(s *models.AutomationSettings) { s.WorkingHours[1].EndTime = "5pm" }},
		{"bad zone", func(s *models.AutomationSettings) { s.TimeZone = "Mars/Olympus" }},
		{"bad response type", func(s *models.AutomationSettings) { s.AutomationRules[0].ResponseType = "voice" }},
		{"duplicate rule id", func(s *models.AutomationSettings) {
			s.AutomationRules = append(s.AutomationRules, rule("ooo", "Welcome"))
		}},
		{"threshold rule without minutes", func(s *models.AutomationSettings) {
			s.AutomationRules[0].Kind = models.RuleThreshold
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			assert.ErrorIs(t, ValidateSettings(s), ErrInvalidSettings)
		})
	}
}
